package cache

import (
	"context"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// PresenceCache 记录“谁在编辑哪份文档”以及各自的光标位置。
// 数据都是短 TTL 的软状态，丢了靠客户端心跳重建，不进持久层。
type PresenceCache interface {
	Touch(ctx context.Context, docID string, userID uint64, username string, ttl time.Duration) error
	Leave(ctx context.Context, docID string, userID uint64) error
	AliveMembers(ctx context.Context, docID string) ([]PresenceMember, error)
	ActiveDocuments(ctx context.Context) ([]string, error)
	SetCaret(ctx context.Context, docID string, userID uint64, jsonData []byte, ttl time.Duration) error
	GetCaret(ctx context.Context, docID string, userID uint64) ([]byte, error)
}

type PresenceMember struct {
	UserID   uint64
	Username string
}

// 具体实现：基于 redis 的 PresenceCache
type redisPresence struct {
	rdb *redis.Client
}

func NewRedisPresence(rdb *redis.Client) PresenceCache {
	return &redisPresence{rdb: rdb}
}

// Touch 登记成员并刷新其存活期，心跳续期也走这里。
func (p *redisPresence) Touch(ctx context.Context, docID string, userID uint64, username string, ttl time.Duration) error {
	tx := p.rdb.TxPipeline()
	// ZSET score 使用 expireAt（Unix 秒），表达“逻辑 TTL”
	expireAt := time.Now().Add(ttl).Unix()
	tx.ZAdd(ctx, roomKey(docID), redis.Z{Score: float64(expireAt), Member: userID})
	tx.HSet(ctx, namesKey(docID), userID, username)
	_, err := tx.Exec(ctx)
	return err
}

// Leave 在连接正常断开时立即摘除成员，不等 TTL 过期。
func (p *redisPresence) Leave(ctx context.Context, docID string, userID uint64) error {
	uid := strconv.FormatUint(userID, 10)
	tx := p.rdb.TxPipeline()
	tx.ZRem(ctx, roomKey(docID), uid)
	tx.HDel(ctx, namesKey(docID), uid)
	tx.Del(ctx, caretKey(docID, userID))
	_, err := tx.Exec(ctx)
	return err
}

func (p *redisPresence) ActiveDocuments(ctx context.Context) ([]string, error) {
	var documents []string
	iter := p.rdb.Scan(ctx, 0, "presence:room:*", 0).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		// namesKey 同样以 presence:room: 开头，需要过滤掉
		if strings.Contains(k, ":names:") {
			continue
		}
		docID := strings.TrimPrefix(k, "presence:room:")
		if docID != "" {
			documents = append(documents, docID)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return documents, nil
}

func (p *redisPresence) SetCaret(ctx context.Context, docID string, userID uint64, jsonData []byte, ttl time.Duration) error {
	return p.rdb.Set(ctx, caretKey(docID, userID), jsonData, ttl).Err()
}

func (p *redisPresence) GetCaret(ctx context.Context, docID string, userID uint64) ([]byte, error) {
	return p.rdb.Get(ctx, caretKey(docID, userID)).Bytes()
}

func (p *redisPresence) AliveMembers(ctx context.Context, docID string) ([]PresenceMember, error) {
	// step1: 清理过期成员
	// 约定：score=expireAt（Unix 秒），expireAt <= now 视为过期
	now := time.Now().Unix()
	luaScript := `
	-- KEYS[1] = roomKey(docID)   e.g. presence:room:{docID}
	-- KEYS[2] = namesKey(docID)  e.g. presence:room:names:{docID}
	-- ARGV[1] = now (unix seconds)

	local expired = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
	if #expired > 0 then
		redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
		redis.call("HDEL", KEYS[2], unpack(expired))
	end
	return #expired
	`
	script := redis.NewScript(luaScript)
	if _, err := script.Run(ctx, p.rdb, []string{roomKey(docID), namesKey(docID)}, now).Int(); err != nil && err != redis.Nil {
		return nil, err
	}

	// step2: 查询在线成员
	aliveIDs, err := p.rdb.ZRangeByScore(ctx, roomKey(docID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now, 10), // > now
		Max: "+inf",
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	if len(aliveIDs) == 0 {
		return nil, nil
	}

	// step3: 批量取名字
	names, err := p.rdb.HMGet(ctx, namesKey(docID), aliveIDs...).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	members := make([]PresenceMember, 0, len(aliveIDs))
	for i, aliveID := range aliveIDs {
		uid, perr := strconv.ParseUint(aliveID, 10, 64)
		if perr != nil {
			continue
		}
		name := ""
		if i < len(names) && names[i] != nil {
			name, _ = names[i].(string)
		}
		members = append(members, PresenceMember{UserID: uid, Username: name})
	}
	return members, nil
}

package cache

import "fmt"

// 键语义：
// - roomKey(docID):          房间在线成员（ZSet<userId, expireAtUnix>，score=expireAt）
// - namesKey(docID):         房间内 userId→username 映射（Hash）
// - caretKey(docID, userID): 成员在文档里的光标/选区（String，JSON）

const (
	keyRoomFmt  = "presence:room:{docID:%s}"       // ZSet<userId, expireAtUnix>
	keyNamesFmt = "presence:room:names:{docID:%s}" // Hash<userId -> username>
	keyCaretFmt = "presence:caret:%s:%d"           // String<JSON>
)

func roomKey(docID string) string  { return fmt.Sprintf(keyRoomFmt, docID) }
func namesKey(docID string) string { return fmt.Sprintf(keyNamesFmt, docID) }

func caretKey(docID string, userID uint64) string {
	return fmt.Sprintf(keyCaretFmt, docID, userID)
}

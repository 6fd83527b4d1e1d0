package delta

import "testing"

func TestInvert_RoundTrip(t *testing.T) {
	cases := []struct {
		name string
		base Delta
		d    Delta
	}{
		{"插入", Delta{}.Insert("Hello\n", nil), Delta{}.Retain(5, nil).Insert(" world", nil)},
		{"删除", Delta{}.Insert("Hello world\n", nil), Delta{}.Retain(5, nil).Delete(6)},
		{"属性修改", Delta{}.Insert("abc", map[string]any{"bold": true}).Insert("def\n", nil),
			Delta{}.Retain(2, map[string]any{"bold": nil, "italic": true})},
		{"混合", Delta{}.Insert("ab", nil).Embed("image", "u", nil).Insert("cd\n", nil),
			Delta{}.Retain(1, nil).Delete(2).Insert("XY", nil)},
	}
	for _, tc := range cases {
		applied, err := ApplyToDocument(tc.base, tc.d)
		if err != nil {
			t.Fatalf("%s: apply error = %v", tc.name, err)
		}
		inv, err := Invert(tc.d, tc.base)
		if err != nil {
			t.Fatalf("%s: Invert() error = %v", tc.name, err)
		}
		restored, err := ApplyToDocument(applied, inv)
		if err != nil {
			t.Fatalf("%s: 回放 invert error = %v", tc.name, err)
		}
		if !restored.Equal(tc.base) {
			t.Fatalf("%s: 撤销后 = %+v, want %+v", tc.name, restored, tc.base)
		}
	}
}

func TestInvert_BadBase(t *testing.T) {
	if _, err := Invert(Delta{}.Delete(1), Delta{}.Retain(1, nil)); err == nil {
		t.Fatalf("非 document 形 base 应当报错")
	}
}

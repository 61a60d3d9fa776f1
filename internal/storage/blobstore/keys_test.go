package blobstore

import (
	"strings"
	"sync"
	"testing"
)

func TestNewKey_Format(t *testing.T) {
	tests := []struct {
		original   string
		wantSuffix string
	}{
		{"sales.xlsx", "_sales.xlsx"},
		{"Отчёт 2024.CSV", "_Отчёт2024.csv"},
		{`C:\Users\ada\data.xls`, "_data.xls"},
		{"../../etc/passwd", "_passwd"},
		{"...", "_file"},
		{"weird name!!.c$v", "_weirdname.cv"},
		{"export.tmp", "_export"},
		{"EXPORT.TMP", "_EXPORT"},
	}

	for _, tt := range tests {
		key := NewKey(tt.original)
		if !strings.HasSuffix(key, tt.wantSuffix) {
			t.Errorf("NewKey(%q) = %q, ожидался суффикс %q", tt.original, key, tt.wantSuffix)
		}
		if err := validateKey(key); err != nil {
			t.Errorf("NewKey(%q) = %q — недопустимый ключ: %v", tt.original, key, err)
		}
	}
}

func TestNewKey_LongNameTruncated(t *testing.T) {
	key := NewKey(strings.Repeat("я", 200) + ".csv")
	parts := strings.SplitN(key, "_", 3)
	if len(parts) != 3 {
		t.Fatalf("неожиданный формат ключа: %q", key)
	}
	name := strings.TrimSuffix(parts[2], ".csv")
	if n := len([]rune(name)); n != 50 {
		t.Errorf("имя должно быть обрезано до 50 символов, получено %d", n)
	}
}

// Два одновременных вызова для одного имени дают разные ключи.
func TestNewKey_ConcurrentUnique(t *testing.T) {
	const n = 200
	keys := make([]string, n)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys[i] = NewKey("same.csv")
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, k := range keys {
		if seen[k] {
			t.Fatalf("коллизия ключей: %q", k)
		}
		seen[k] = true
	}
}

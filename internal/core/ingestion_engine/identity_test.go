package ingestion_engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashID(t *testing.T) {
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", HashID("hello"))
	assert.Equal(t, HashID("same text"), HashID("same text"))
	assert.NotEqual(t, HashID("page one"), HashID("page two"))
	assert.Len(t, HashID(""), 32)
}

func TestDeriveNamespace(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"uploads/1700000000000my-file.pdf", "uploads/1700000000000my-file.pdf"},
		{"uploads/1700000000000Annual_Report v2.pdf", "uploads/1700000000000Annual_Report-v2.pdf"},
		{"uploads/1700000000000résumé.pdf", "uploads/1700000000000rsum.pdf"},
		{"a b?c#d", "a-b-c-d"},
		{"日本語", "default"},
		{"", "default"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveNamespace(tt.key))
		})
	}
}

func TestDeriveNamespace_Charset(t *testing.T) {
	keys := []string{
		"uploads/1700000000000 my file (final).pdf",
		"uploads/ümlaut\x00\t\n",
		"~!@#$%^&*()+={}[]|\\:;\"'<>,?",
		"\xff\xfe invalid utf8",
	}
	for _, key := range keys {
		ns := DeriveNamespace(key)
		assert.Equal(t, ns, DeriveNamespace(key))
		assert.NotEmpty(t, ns)
		for _, r := range ns {
			allowed := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
				r == '.' || r == '_' || r == '-' || r == '/'
			assert.Truef(t, allowed, "namespace %q of key %q contains %q", ns, key, r)
		}
	}
}

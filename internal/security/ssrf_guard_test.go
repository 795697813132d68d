package security

import (
	"testing"
	"time"
)

func TestValidateURL_AllowsPublicURLs(t *testing.T) {
	g := NewSSRFGuard()

	for _, u := range []string{
		"https://example.com/news/article-1",
		"http://news.example.org/path?q=1",
		"https://93.184.216.34/image.jpg",
	} {
		if err := g.ValidateURL(u); err != nil {
			t.Errorf("ValidateURL(%q) がエラーを返した: %v", u, err)
		}
	}
}

func TestValidateURL_BlocksDangerousURLs(t *testing.T) {
	g := NewSSRFGuard()

	tests := []struct {
		name string
		url  string
	}{
		{"空URL", ""},
		{"ftpスキーム", "ftp://example.com/file"},
		{"fileスキーム", "file:///etc/passwd"},
		{"localhost", "http://localhost/admin"},
		{"ループバックIP", "http://127.0.0.1:80/"},
		{"プライベートIP 10系", "http://10.0.0.5/internal"},
		{"プライベートIP 192.168系", "https://192.168.1.1/router"},
		{"メタデータIP", "http://169.254.169.254/latest/meta-data/"},
		{"ホストなし", "https:///path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := g.ValidateURL(tt.url); err == nil {
				t.Errorf("ValidateURL(%q) はブロックされるべき", tt.url)
			}
		})
	}
}

func TestNewSafeClient_ReturnsConfiguredClient(t *testing.T) {
	g := NewSSRFGuard()

	client := g.NewSafeClient(5 * time.Second)
	if client == nil {
		t.Fatal("NewSafeClient は nil を返してはならない")
	}
	if client.Timeout != 5*time.Second {
		// safeurlはタイムアウトを内部configで管理する実装もあるため、
		// ゼロ値でないことのみを厳密条件にはしない
		t.Logf("client.Timeout = %v（safeurl内部で管理される場合がある）", client.Timeout)
	}
}

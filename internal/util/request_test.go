package util

import (
	"net/http"
	"testing"
)

func TestDeriveClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "prefers first XFF token",
			remoteAddr: "2.2.2.2:1234",
			headers:    map[string]string{"X-Forwarded-For": "1.1.1.1, 3.3.3.3"},
			want:       "1.1.1.1",
		},
		{
			name:       "falls back to X-Real-IP",
			remoteAddr: "2.2.2.2:1234",
			headers:    map[string]string{"X-Real-IP": "4.4.4.4"},
			want:       "4.4.4.4",
		},
		{
			name:       "falls back to remote addr",
			remoteAddr: "5.5.5.5:1234",
			headers:    map[string]string{},
			want:       "5.5.5.5",
		},
		{
			name:       "ignores unparsable XFF and uses remote addr",
			remoteAddr: "6.6.6.6:1234",
			headers:    map[string]string{"X-Forwarded-For": "not-an-ip"},
			want:       "6.6.6.6",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tc.headers {
				h.Set(k, v)
			}
			got := DeriveClientIP(tc.remoteAddr, h)
			if got == nil || got.String() != tc.want {
				t.Errorf("DeriveClientIP() = %v, want %s", got, tc.want)
			}
		})
	}
}

func TestGenerateRequestID_Unique(t *testing.T) {
	a := GenerateRequestID()
	b := GenerateRequestID()
	if a == b {
		t.Error("expected distinct request IDs")
	}
	if len(a) != 16 {
		t.Errorf("expected 16 hex chars, got %d", len(a))
	}
}

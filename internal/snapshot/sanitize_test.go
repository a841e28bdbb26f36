package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlobName(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"nginx:1.25", "nginx_1.25.tar"},
		{"nginx", "nginx.tar"},
		{"library/postgres:16-alpine", "library_postgres_16-alpine.tar"},
		{"registry.example.com:5000/team/app:v2", "registry.example.com_5000_team_app_v2.tar"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BlobName(tt.ref))
	}
}

func TestBlobNameDistinctRefsStayDistinct(t *testing.T) {
	refs := []string{
		"nginx:1.25",
		"nginx:1.26",
		"team/nginx:1.25",
		"registry.example.com/team/nginx:1.25",
	}
	seen := make(map[string]string)
	for _, ref := range refs {
		name := BlobName(ref)
		if prev, ok := seen[name]; ok {
			t.Fatalf("refs %q and %q collide on %q", prev, ref, name)
		}
		seen[name] = ref
	}
}

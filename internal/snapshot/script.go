package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
)

// restoreScript is the self-contained restore procedure embedded in every
// archive, so a snapshot can be restored on a host that has only the
// container runtime and a shell. It runs the same stage sequence with the
// same tolerance policy as the restore subcommand: per-artifact failures
// warn and continue, an unstartable deployment is the one fatal outcome.
const restoreScript = `#!/bin/sh
# Restore a %[1]s deployment snapshot on this host.
# Usage: ./restore [target_dir]    (defaults to the current directory)
set -u

TARGET_DIR="${1:-$(pwd)}"
ROOT="$(cd "$(dirname "$0")" && pwd)"
HOST_KEY="%[2]s"
WARNINGS=0

warn() { echo "WARNING: $*" >&2; WARNINGS=$((WARNINGS + 1)); }
fail() { echo "ERROR: $*" >&2; exit 1; }

echo "== VALIDATING"
docker info >/dev/null 2>&1 || fail "container runtime is not reachable"
if docker compose version >/dev/null 2>&1; then
    COMPOSE="docker compose"
elif command -v docker-compose >/dev/null 2>&1; then
    COMPOSE="docker-compose"
else
    fail "no compose command found"
fi

echo "== CONFIGURING"
mkdir -p "$TARGET_DIR" || fail "cannot create target directory"
cp -R "$ROOT/config/." "$TARGET_DIR/" || fail "cannot copy configuration"
HOST_ADDR=$(hostname -I 2>/dev/null | awk '{print $1}')
if [ -n "$HOST_ADDR" ] && [ -f "$TARGET_DIR/.env" ]; then
    sed -i.bak "s/^${HOST_KEY}=.*/${HOST_KEY}=${HOST_ADDR}/" "$TARGET_DIR/.env" && rm -f "$TARGET_DIR/.env.bak"
else
    warn "host address not rewritten, check ${HOST_KEY} in .env"
fi

echo "== LOADING_IMAGES"
while IFS= read -r ref; do
    [ -n "$ref" ] || continue
    blob="$ROOT/images/$(echo "$ref" | tr '/:' '__').tar"
    if [ -f "$blob" ]; then
        docker load -i "$blob" || warn "failed to load $ref"
    else
        docker pull "$ref" || warn "no blob for $ref and pull failed"
    fi
done < "$ROOT/image_list.txt"

echo "== RESTORING_VOLUMES"
while IFS= read -r name; do
    [ -n "$name" ] || continue
    blob="$ROOT/volumes/${name}.tar.gz"
    if [ ! -f "$blob" ]; then
        warn "no data for volume $name, skipped"
        continue
    fi
    docker volume create "$name" >/dev/null || warn "failed to create volume $name"
    docker run --rm -v "$name":/target -v "$ROOT/volumes":/backup:ro alpine:latest \
        sh -c "rm -rf /target/* /target/.[!.]* 2>/dev/null; tar xzf /backup/${name}.tar.gz -C /target" \
        || warn "failed to restore volume $name"
done < "$ROOT/volume_list.txt"

echo "== STARTING"
(cd "$TARGET_DIR" && $COMPOSE down --remove-orphans >/dev/null 2>&1)
(cd "$TARGET_DIR" && $COMPOSE up -d) || fail "deployment failed to start"

echo "== DONE ($WARNINGS warning(s))"
`

// writeRestoreScript writes the embedded restore procedure into the staging
// root and marks it executable.
func writeRestoreScript(stagingDir, deployment string) error {
	script := fmt.Sprintf(restoreScript, deployment, HostAddressKey)
	path := filepath.Join(stagingDir, RestoreScriptFile)
	if err := os.WriteFile(path, []byte(script), 0755); err != nil { // #nosec G306 - must be executable
		return fmt.Errorf("failed to write restore script: %w", err)
	}
	return nil
}

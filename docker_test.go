package seokit_test

import (
	"os"
	"strings"
	"testing"
)

func readFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	return string(data)
}

func TestDockerfileMultiStageBuild(t *testing.T) {
	content := readFile(t, "Dockerfile")

	// マルチステージビルドの確認: ビルドステージと実行ステージが存在すること
	if !strings.Contains(content, "FROM golang:") {
		t.Error("Dockerfile should contain a Go builder stage (FROM golang:)")
	}

	// 最終ステージは軽量イメージであること
	var lastFrom string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "FROM ") {
			lastFrom = trimmed
		}
	}
	if !strings.Contains(lastFrom, "gcr.io/distroless") && !strings.Contains(lastFrom, "alpine") && !strings.Contains(lastFrom, "scratch") {
		t.Errorf("final stage should use a minimal base image (distroless/alpine/scratch), got: %s", lastFrom)
	}
}

func TestDockerfileBuildsCLI(t *testing.T) {
	content := readFile(t, "Dockerfile")

	// cmd/seokit からseokitバイナリをビルドすること
	if !strings.Contains(content, "./cmd/seokit") {
		t.Error("Dockerfile should build ./cmd/seokit")
	}
	if !strings.Contains(content, `ENTRYPOINT ["/seokit"]`) {
		t.Error("Dockerfile should use the seokit binary as ENTRYPOINT")
	}
	// 既定ではスタブバックエンドを起動すること
	if !strings.Contains(content, `CMD ["stub"]`) {
		t.Error("Dockerfile should default to the stub subcommand")
	}
}

func TestDockerComposeStubService(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	if !strings.Contains(content, "stub:") {
		t.Error("docker-compose.yml should contain service \"stub\"")
	}

	// distrolessにはシェルがないため、healthcheckサブコマンドで確認すること
	if !strings.Contains(content, `"/seokit", "healthcheck"`) {
		t.Error("docker-compose.yml should use the healthcheck subcommand")
	}
}

func TestDockerComposeNetworks(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	if !strings.Contains(content, "networks:") {
		t.Error("docker-compose.yml should define networks")
	}
	if !strings.Contains(content, "internal: true") {
		t.Error("docker-compose.yml should define an internal network (internal: true)")
	}
}

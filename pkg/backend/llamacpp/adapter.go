// Package llamacpp implements the reference backend adapter: a llama-server
// subprocess speaking llama-server's native streaming /completion API over a
// Unix domain socket.
package llamacpp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/modelrt/corerun/pkg/backend"
	"github.com/modelrt/corerun/pkg/logging"
	"github.com/modelrt/corerun/pkg/manifest"
	"github.com/modelrt/corerun/pkg/metrics"
	"github.com/modelrt/corerun/pkg/modelerror"
	"github.com/modelrt/corerun/pkg/stream"
	"github.com/modelrt/corerun/pkg/utils"
)

// Name is the backend tag this adapter answers to, matching manifest
// backendHints values.
const Name = "llama.cpp"

const (
	maximumReadinessPings  = 60
	readinessRetryInterval = 500 * time.Millisecond
)

// Adapter runs llama.cpp's server binary as a subprocess per loaded model.
type Adapter struct {
	binaryPath string
	log        logging.Logger
}

// New constructs an Adapter that execs binaryPath (llama-server or
// equivalent) for every Load.
func New(binaryPath string, log logging.Logger) *Adapter {
	return &Adapter{binaryPath: binaryPath, log: log}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) SupportsPlatform(platform string) bool {
	switch platform {
	case "linux/amd64", "linux/arm64", "darwin/amd64", "darwin/arm64", "windows/amd64":
		return true
	default:
		return false
	}
}

func (a *Adapter) ProbeAcceleration(ctx context.Context) (string, bool) {
	// The adapter itself is accelerator-agnostic: llama.cpp picks its
	// compute backend at process start from the binary it was built
	// against. Acceleration provider selection lives in hostprobe/selector.
	return "cpu", true
}

// session is the Handle returned by Load.
type session struct {
	cmd    *exec.Cmd
	socket string
	client *http.Client
	cancel context.CancelFunc
	done   <-chan struct{}
	stderr io.WriteCloser
}

func (a *Adapter) Load(ctx context.Context, item *manifest.ModelItem, params backend.LoadParams) (backend.Handle, error) {
	if params.ModelPath == "" {
		return nil, modelerror.New(modelerror.InvalidModelFormat, "llama.cpp requires a GGUF model path")
	}

	socket, err := socketPath(item.ID)
	if err != nil {
		return nil, modelerror.New(modelerror.RuntimeNotAvailable, "unable to allocate backend socket", modelerror.WithCause(err))
	}
	_ = os.RemoveAll(socket)

	args := buildArgs(params, socket)

	runCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(runCtx, a.binaryPath, args...)
	if a.log != nil {
		a.log.Info("starting llama.cpp backend", "args", utils.SplitArgs(strings.Join(args, " ")))
	}

	var stderr io.WriteCloser
	if a.log != nil {
		stderr = logging.NewWriter(a.log.With("source", "llama.cpp", "model", item.ID))
		cmd.Stderr = stderr
	}

	if err := cmd.Start(); err != nil {
		cancel()
		if stderr != nil {
			stderr.Close()
		}
		merr := modelerror.New(modelerror.RuntimeNotAvailable, "failed to start llama.cpp process", modelerror.WithCause(err))
		a.logFailure("failed to start llama.cpp process", merr)
		return nil, merr
	}

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		if stderr != nil {
			stderr.Close()
		}
		close(done)
	}()

	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socket)
		},
	}
	sess := &session{
		cmd:    cmd,
		socket: socket,
		client: &http.Client{Transport: transport},
		cancel: cancel,
		done:   done,
		stderr: stderr,
	}

	if err := sess.waitReady(ctx); err != nil {
		cancel()
		<-done
		merr := modelerror.New(modelerror.RuntimeNotAvailable, "llama.cpp backend did not become ready", modelerror.WithCause(err))
		a.logFailure("llama.cpp backend did not become ready", merr)
		return nil, merr
	}

	return sess, nil
}

// logFailure logs merr's structured Details (backend, artifact, expected/
// actual hashes, and the like) alongside its message, using logging.Fields
// to render the map as the alternating key-value args slog expects.
func (a *Adapter) logFailure(msg string, merr *modelerror.Error) {
	if a.log == nil {
		return
	}
	args := logging.Fields(merr.Details)
	a.log.Error(msg, append([]any{"code", string(merr.Code)}, args...)...)
}

func (s *session) waitReady(ctx context.Context) error {
	for p := 0; p < maximumReadinessPings; p++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://localhost/health", http.NoBody)
		if err != nil {
			return err
		}
		resp, err := s.client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-time.After(readinessRetryInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("backend not ready after %d pings", maximumReadinessPings)
}

// ScrapeMetrics fetches llama-server's own Prometheus exposition (enabled by
// the --metrics flag buildArgs always passes) and parses it with
// metrics.PrometheusParser. It is not part of the Adapter interface since no
// other backend exposes this; callers type-assert the Handle to reach it.
func (s *session) ScrapeMetrics(ctx context.Context) ([]metrics.PrometheusMetric, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://localhost/metrics", http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metrics endpoint returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return metrics.NewPrometheusParser().ParseMetrics(string(body))
}

func (a *Adapter) Unload(ctx context.Context, handle backend.Handle) error {
	sess, ok := handle.(*session)
	if !ok {
		return modelerror.New(modelerror.ConfigError, "unload called with foreign handle")
	}
	sess.cancel()
	select {
	case <-sess.done:
	case <-time.After(5 * time.Second):
	}
	_ = os.RemoveAll(sess.socket)
	return nil
}

// completionChunk is the subset of llama.cpp's streamed SSE payload this
// adapter consumes.
type completionChunk struct {
	Content         string `json:"content"`
	Stop            bool   `json:"stop"`
	TokensPredicted int    `json:"tokens_predicted"`
	TokensEvaluated int    `json:"tokens_evaluated"`
}

func (a *Adapter) Stream(ctx context.Context, handle backend.Handle, prompt string, params backend.GenerationParams) (<-chan stream.RawEvent, error) {
	sess, ok := handle.(*session)
	if !ok {
		return nil, modelerror.New(modelerror.ConfigError, "stream called with foreign handle")
	}

	body := map[string]any{
		"prompt":      prompt,
		"stream":      true,
		"n_predict":   params.MaxNewTokens,
		"temperature": params.Temperature,
		"top_p":       params.TopP,
		"top_k":       params.TopK,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, modelerror.New(modelerror.ConfigError, "failed to encode generation request", modelerror.WithCause(err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://localhost/completion", bytes.NewReader(payload))
	if err != nil {
		return nil, modelerror.New(modelerror.ConfigError, "failed to build generation request", modelerror.WithCause(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := sess.client.Do(req)
	if err != nil {
		return nil, modelerror.New(modelerror.RuntimeNotAvailable, "llama.cpp request failed", modelerror.WithCause(err))
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, modelerror.New(modelerror.RuntimeNotAvailable, "llama.cpp returned non-200 status", modelerror.WithDetail("status", resp.StatusCode))
	}

	out := make(chan stream.RawEvent)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		tokensPredicted := 0
		for scanner.Scan() {
			line := scanner.Text()
			data, ok := strings.CutPrefix(line, "data: ")
			if !ok {
				continue
			}
			var chunk completionChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			tokensPredicted = chunk.TokensPredicted

			if chunk.Content != "" {
				select {
				case out <- stream.RawEvent{Text: chunk.Content}:
				case <-ctx.Done():
					return
				}
			}
			if chunk.Stop {
				out <- stream.RawEvent{
					Done:         true,
					FinishReason: stream.FinishEOS,
					Stats:        stream.Stats{CompletionTokens: tokensPredicted, PromptTokens: chunk.TokensEvaluated},
				}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			out <- stream.RawEvent{Done: true, Err: modelerror.New(modelerror.RuntimeNotAvailable, "llama.cpp stream ended unexpectedly", modelerror.WithCause(err))}
			return
		}
		out <- stream.RawEvent{Done: true, FinishReason: stream.FinishEOS, Stats: stream.Stats{CompletionTokens: tokensPredicted}}
	}()

	return out, nil
}

func (a *Adapter) Invoke(ctx context.Context, handle backend.Handle, req backend.Request) (backend.Response, error) {
	return backend.Response{}, modelerror.New(modelerror.UnsupportedPlatform, "llama.cpp adapter only supports LLM streaming")
}

func buildArgs(params backend.LoadParams, socket string) []string {
	args := []string{"--jinja", "--metrics"}
	args = append(args, "--model", params.ModelPath, "--host", socket)
	if params.MmprojPath != "" {
		args = append(args, "--mmproj", params.MmprojPath)
	}
	if params.ContextLength > 0 {
		args = append(args, "--ctx-size", strconv.Itoa(params.ContextLength))
	}
	args = append(args, "-ngl", strconv.Itoa(params.GpuLayers))
	if params.Threads > 0 {
		args = append(args, "--threads", strconv.Itoa(params.Threads))
	}
	return args
}

func socketPath(modelID string) (string, error) {
	dir, err := os.MkdirTemp("", "modelrt-llamacpp-*")
	if err != nil {
		return "", err
	}
	safe := strings.ReplaceAll(modelID, "/", "_")
	return dir + "/" + safe + ".sock", nil
}

package daemon

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/greenroom-sh/greenroom/internal/admission"
	"github.com/greenroom-sh/greenroom/internal/boot"
	"github.com/greenroom-sh/greenroom/internal/core"
	"github.com/greenroom-sh/greenroom/internal/store"
	"github.com/greenroom-sh/greenroom/internal/supervisor"
	"github.com/greenroom-sh/greenroom/internal/tunnel"
)

// quietLogger suppresses default slog output during tests
func quietLogger(t *testing.T) {
	t.Helper()
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(99)})))
	t.Cleanup(func() { slog.SetDefault(old) })
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	quietLogger(t)

	oldConfig := core.Config
	t.Cleanup(func() { core.Config = oldConfig })
	if err := core.InitializeConfig(t.TempDir(), 0); err != nil {
		t.Fatalf("failed to initialize config: %v", err)
	}

	db, err := store.Open(core.GetDatabasePath())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	d := &Daemon{
		queue:  admission.NewController(admission.Options{}),
		server: supervisor.New(supervisor.Options{StopGrace: 2 * time.Second}),
		tunnels: tunnel.NewManager(
			tunnel.DefaultFactory(core.Config.Boot.NgrokAPIAddr, time.Second)),
		store:        db,
		metrics:      NewCommandMetrics(100),
		logBroadcast: NewLogBroadcaster(100),
		ctx:          ctx,
		cancelFunc:   cancel,
	}
	d.saga = boot.NewOrchestrator(d.server, d.tunnels, &projectPlans{store: db}, boot.Options{
		SettleDelay: 50 * time.Millisecond,
	})
	t.Cleanup(func() { d.server.Stop() })
	return d
}

// sendIPCCommand drives handleConnection via net.Pipe. Streamed progress
// messages precede the final Response; both are returned.
func sendIPCCommand(t *testing.T, d *Daemon, command string) (Response, []ResponseMessage) {
	t.Helper()

	clientConn, serverConn := net.Pipe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.handleConnection(serverConn)
	}()

	if _, err := clientConn.Write([]byte(command + "\n")); err != nil {
		t.Fatalf("failed to write command: %v", err)
	}

	data, err := io.ReadAll(clientConn)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	clientConn.Close()
	<-done

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	var streamed []ResponseMessage
	for _, line := range lines[:len(lines)-1] {
		var msg ResponseMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			t.Fatalf("failed to parse streamed message %q: %v", line, err)
		}
		streamed = append(streamed, msg)
	}

	var resp Response
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &resp); err != nil {
		t.Fatalf("failed to parse response JSON %q: %v", lines[len(lines)-1], err)
	}
	return resp, streamed
}

func dataMap(t *testing.T, resp Response) map[string]interface{} {
	t.Helper()
	m, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("expected object data, got %T", resp.Data)
	}
	return m
}

func TestUnknownCommand(t *testing.T) {
	d := newTestDaemon(t)

	resp, _ := sendIPCCommand(t, d, "FOOBAR")
	if len(resp.Messages) != 1 || resp.Messages[0].Status != "ERROR" {
		t.Fatalf("expected a single ERROR message, got %+v", resp.Messages)
	}
	if resp.Messages[0].Message != "Unknown command." {
		t.Errorf("unexpected message %q", resp.Messages[0].Message)
	}
}

func TestVersionCommand(t *testing.T) {
	d := newTestDaemon(t)

	resp, _ := sendIPCCommand(t, d, "VERSION")
	if resp.HasErrors() {
		t.Fatalf("VERSION failed: %+v", resp.Messages)
	}
	data := dataMap(t, resp)
	if _, ok := data["version"]; !ok {
		t.Error("version missing from data")
	}
	if _, ok := data["pid"]; !ok {
		t.Error("pid missing from data")
	}
}

func TestJoinGrantsActiveThenQueues(t *testing.T) {
	d := newTestDaemon(t)

	first, _ := sendIPCCommand(t, d, "JOIN")
	if first.HasErrors() {
		t.Fatalf("first JOIN failed: %+v", first.Messages)
	}
	firstData := dataMap(t, first)
	if firstData["state"] != "active" {
		t.Errorf("expected first session active, got %v", firstData["state"])
	}

	second, _ := sendIPCCommand(t, d, "JOIN")
	secondData := dataMap(t, second)
	if secondData["state"] != "waiting" {
		t.Errorf("expected second session waiting, got %v", secondData["state"])
	}
	if secondData["position"] != float64(1) {
		t.Errorf("expected position 1, got %v", secondData["position"])
	}
}

func TestOperatorJoinSkipsQueue(t *testing.T) {
	d := newTestDaemon(t)

	sendIPCCommand(t, d, "JOIN") // occupies the active slot
	sendIPCCommand(t, d, "JOIN") // waits

	op, _ := sendIPCCommand(t, d, "JOIN operator")
	opData := dataMap(t, op)
	if opData["state"] != "active" {
		t.Errorf("operator should always be active, got %v", opData["state"])
	}

	status, _ := sendIPCCommand(t, d, "QUEUE_STATUS")
	statusData := dataMap(t, status)
	waiting, _ := statusData["waiting"].([]interface{})
	if len(waiting) != 1 {
		t.Errorf("operator join must not disturb the queue, waiting: %v", waiting)
	}
}

func TestLeavePromotesNextInLine(t *testing.T) {
	d := newTestDaemon(t)

	first, _ := sendIPCCommand(t, d, "JOIN")
	firstID := dataMap(t, first)["session_id"].(string)
	second, _ := sendIPCCommand(t, d, "JOIN")
	secondID := dataMap(t, second)["session_id"].(string)

	leave, _ := sendIPCCommand(t, d, "LEAVE "+firstID)
	if leave.HasErrors() {
		t.Fatalf("LEAVE failed: %+v", leave.Messages)
	}

	status, _ := sendIPCCommand(t, d, "QUEUE_STATUS")
	statusData := dataMap(t, status)
	if statusData["active_session_id"] != secondID {
		t.Errorf("expected %s promoted, status %+v", secondID, statusData)
	}
}

func TestHeartbeatUnknownSession(t *testing.T) {
	d := newTestDaemon(t)

	resp, _ := sendIPCCommand(t, d, "HEARTBEAT no-such-session")
	if !resp.HasErrors() {
		t.Fatalf("expected error for unknown session, got %+v", resp.Messages)
	}
	if !strings.Contains(resp.Messages[0].Message, "unknown session") {
		t.Errorf("unexpected message %q", resp.Messages[0].Message)
	}
}

func TestConfigSetAndGet(t *testing.T) {
	d := newTestDaemon(t)

	set, _ := sendIPCCommand(t, d, "CONFIG_SET port 5173")
	if set.HasErrors() {
		t.Fatalf("CONFIG_SET failed: %+v", set.Messages)
	}

	get, _ := sendIPCCommand(t, d, "CONFIG_GET")
	if got := dataMap(t, get)["port"]; got != float64(5173) {
		t.Errorf("expected port 5173, got %v", got)
	}
}

func TestConfigSetCommandKeepsSpaces(t *testing.T) {
	d := newTestDaemon(t)

	sendIPCCommand(t, d, "CONFIG_SET command npm run dev")

	get, _ := sendIPCCommand(t, d, "CONFIG_GET")
	if got := dataMap(t, get)["command"]; got != "npm run dev" {
		t.Errorf("expected full command preserved, got %v", got)
	}
}

func TestConfigSetRejectsBadValues(t *testing.T) {
	d := newTestDaemon(t)

	for _, command := range []string{
		"CONFIG_SET port notanumber",
		"CONFIG_SET port 99999",
		"CONFIG_SET ngrok maybe",
		"CONFIG_SET bogusfield value",
	} {
		resp, _ := sendIPCCommand(t, d, command)
		if !resp.HasErrors() {
			t.Errorf("expected %q to be rejected, got %+v", command, resp.Messages)
		}
	}
}

func TestServerLifecycleOverIPC(t *testing.T) {
	d := newTestDaemon(t)

	sendIPCCommand(t, d, "CONFIG_SET command sleep 30")

	start, _ := sendIPCCommand(t, d, "SERVER_START")
	if start.HasErrors() {
		t.Fatalf("SERVER_START failed: %+v", start.Messages)
	}

	status, _ := sendIPCCommand(t, d, "SERVER_STATUS")
	if got := dataMap(t, status)["state"]; got != "running" {
		t.Errorf("expected running server, got %v", got)
	}

	again, _ := sendIPCCommand(t, d, "SERVER_START")
	if !again.HasErrors() {
		t.Error("second SERVER_START should report already running")
	}

	stop, _ := sendIPCCommand(t, d, "SERVER_STOP")
	if stop.HasErrors() {
		t.Fatalf("SERVER_STOP failed: %+v", stop.Messages)
	}
}

func TestServerStartWithoutCommand(t *testing.T) {
	d := newTestDaemon(t)

	resp, _ := sendIPCCommand(t, d, "SERVER_START")
	if !resp.HasErrors() {
		t.Fatalf("expected error without a configured command, got %+v", resp.Messages)
	}
}

func TestPresetsOverIPC(t *testing.T) {
	d := newTestDaemon(t)

	sendIPCCommand(t, d, "CONFIG_SET command npm run dev")
	sendIPCCommand(t, d, "CONFIG_SET port 3000")

	save, _ := sendIPCCommand(t, d, "PRESET_SAVE web")
	if save.HasErrors() {
		t.Fatalf("PRESET_SAVE failed: %+v", save.Messages)
	}

	list, _ := sendIPCCommand(t, d, "PRESET_LIST")
	presets, _ := list.Data.([]interface{})
	if len(presets) != 1 {
		t.Fatalf("expected 1 preset, got %v", list.Data)
	}

	// Change the project, then load the preset back
	sendIPCCommand(t, d, "CONFIG_SET port 9999")
	load, _ := sendIPCCommand(t, d, "PRESET_LOAD web")
	if load.HasErrors() {
		t.Fatalf("PRESET_LOAD failed: %+v", load.Messages)
	}
	get, _ := sendIPCCommand(t, d, "CONFIG_GET")
	if got := dataMap(t, get)["port"]; got != float64(3000) {
		t.Errorf("preset load did not restore port, got %v", got)
	}

	del, _ := sendIPCCommand(t, d, "PRESET_DELETE web")
	if del.HasErrors() {
		t.Fatalf("PRESET_DELETE failed: %+v", del.Messages)
	}
	missing, _ := sendIPCCommand(t, d, "PRESET_LOAD web")
	if !missing.HasErrors() {
		t.Error("loading a deleted preset should fail")
	}
}

func TestBootWithoutCommandStreamsFailure(t *testing.T) {
	d := newTestDaemon(t)

	resp, streamed := sendIPCCommand(t, d, "BOOT")
	if !resp.HasErrors() {
		t.Fatalf("expected BOOT to fail without a command, got %+v", resp.Messages)
	}
	if len(streamed) == 0 {
		t.Error("expected streamed progress before the final response")
	}

	status, _ := sendIPCCommand(t, d, "STATUS")
	if got := dataMap(t, status)["saga"]; got != "failed" {
		t.Errorf("expected failed saga, got %v", got)
	}
}

func TestBootAndShutdownStreamTrail(t *testing.T) {
	d := newTestDaemon(t)

	sendIPCCommand(t, d, "CONFIG_SET command sleep 30")

	resp, streamed := sendIPCCommand(t, d, "BOOT")
	if resp.HasErrors() {
		t.Fatalf("BOOT failed: %+v %+v", resp.Messages, streamed)
	}
	sawStart := false
	for _, msg := range streamed {
		if strings.Contains(msg.Message, "Server started") {
			sawStart = true
		}
	}
	if !sawStart {
		t.Errorf("expected a server start entry in the trail: %+v", streamed)
	}

	down, _ := sendIPCCommand(t, d, "SHUTDOWN")
	if down.HasErrors() {
		t.Fatalf("SHUTDOWN failed: %+v", down.Messages)
	}

	status, _ := sendIPCCommand(t, d, "SERVER_STATUS")
	if got := dataMap(t, status)["state"]; got != "stopped" {
		t.Errorf("expected stopped server after shutdown, got %v", got)
	}
}

func TestStatusIsComposite(t *testing.T) {
	d := newTestDaemon(t)

	resp, _ := sendIPCCommand(t, d, "STATUS")
	if resp.HasErrors() {
		t.Fatalf("STATUS failed: %+v", resp.Messages)
	}
	data := dataMap(t, resp)
	for _, key := range []string{"project", "server", "tunnels", "queue", "saga"} {
		if _, ok := data[key]; !ok {
			t.Errorf("STATUS data missing %q: %v", key, data)
		}
	}
}

func TestMetricsCommandCountsTraffic(t *testing.T) {
	d := newTestDaemon(t)

	sendIPCCommand(t, d, "VERSION")
	sendIPCCommand(t, d, "FOOBAR")

	resp, _ := sendIPCCommand(t, d, "METRICS")
	if resp.HasErrors() {
		t.Fatalf("METRICS failed: %+v", resp.Messages)
	}
	data := dataMap(t, resp)
	summary, ok := data["summary"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected summary object, got %v", data["summary"])
	}
	if total := summary["total_commands"].(float64); total < 2 {
		t.Errorf("expected at least 2 recorded commands, got %v", total)
	}
}

package daemon

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/greenroom-sh/greenroom/internal/admission"
	"github.com/greenroom-sh/greenroom/internal/boot"
	"github.com/greenroom-sh/greenroom/internal/core"
	"github.com/greenroom-sh/greenroom/internal/store"
	"github.com/greenroom-sh/greenroom/internal/supervisor"
	"github.com/greenroom-sh/greenroom/internal/tunnel"
)

// Daemon owns the long-lived subsystems and serves the IPC socket.
type Daemon struct {
	queue        *admission.Controller
	server       *supervisor.Supervisor
	tunnels      *tunnel.Manager
	saga         *boot.Orchestrator
	store        *store.Store
	metrics      *CommandMetrics
	logBroadcast *LogBroadcaster

	listener     net.Listener
	shutdownOnce sync.Once
	ctx          context.Context
	cancelFunc   context.CancelFunc
}

func New() *Daemon {
	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		queue: admission.NewController(admission.Options{
			LivenessWindow: core.Config.Queue.LivenessWindow,
			SweepInterval:  core.Config.Queue.SweepInterval,
		}),
		server: supervisor.New(supervisor.Options{
			StopGrace:  core.Config.Server.StopGrace,
			LogHistory: core.Config.Server.LogHistory,
		}),
		tunnels:      tunnel.NewManager(tunnel.DefaultFactory(core.Config.Boot.NgrokAPIAddr, core.Config.Boot.TunnelWait)),
		metrics:      NewCommandMetrics(500),
		logBroadcast: NewLogBroadcaster(1000),
		ctx:          ctx,
		cancelFunc:   cancel,
	}
}

// projectPlans adapts the store's project row into a boot plan
type projectPlans struct {
	store *store.Store
}

func (p *projectPlans) BootPlan() (boot.Plan, error) {
	project, err := p.store.GetProject()
	if err != nil {
		return boot.Plan{}, err
	}
	if project.Command == "" {
		return boot.Plan{}, fmt.Errorf("no server command configured, set one with 'greenroom config set command ...'")
	}

	var tunnels []string
	if project.NgrokEnabled {
		tunnels = append(tunnels, tunnel.Ngrok)
	}
	if project.CloudflareEnabled {
		tunnels = append(tunnels, tunnel.Cloudflare)
	}

	return boot.Plan{
		Command:   project.Command,
		Directory: project.Directory,
		Port:      project.Port,
		Tunnels:   tunnels,
	}, nil
}

// Run starts the daemon's main loop.
func (d *Daemon) Run() {
	// Setup custom logger that broadcasts to connected clients
	d.setupLogging()

	// Open the project database
	dbPath := core.GetDatabasePath()
	db, err := store.Open(dbPath)
	if err != nil {
		slog.Error("Fatal: Could not open database", "error", err, "path", dbPath)
		os.Exit(1)
	}
	d.store = db
	slog.Info("Database opened", "path", dbPath)

	d.saga = boot.NewOrchestrator(d.server, d.tunnels, &projectPlans{store: db}, boot.Options{
		SettleDelay: core.Config.Boot.SettleDelay,
	})

	version := core.FormatVersion(core.Version)
	if err := d.store.LogEvent("daemon", "start", fmt.Sprintf("version: %s, PID: %d", version, os.Getpid())); err != nil {
		slog.Error("Failed to log daemon start", "error", err)
	}

	// Setup PID and socket files and ensure they are cleaned up on exit.
	socketPath := core.GetSocketPath()
	pidFilePath := core.GetPIDFilePath()

	// Try to create the socket listener
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		// Socket creation failed - this could be due to a stale socket file
		if _, statErr := os.Stat(socketPath); statErr == nil {
			// Socket file exists, dial it to see if a daemon is actually running
			conn, dialErr := net.Dial("unix", socketPath)
			if dialErr == nil {
				conn.Close()
				slog.Error("Fatal: Daemon is already running")
				os.Exit(1)
			}
			// Connection failed, socket file is stale - remove it
			slog.Info(fmt.Sprintf("Removing stale socket file: %s", socketPath))
			if removeErr := os.Remove(socketPath); removeErr != nil {
				slog.Error(fmt.Sprintf("Fatal: Could not remove stale socket: %v", removeErr))
				os.Exit(1)
			}
			listener, err = net.Listen("unix", socketPath)
		}
		if err != nil {
			slog.Error(fmt.Sprintf("Fatal: Could not create socket listener: %v", err))
			os.Exit(1)
		}
	}

	os.WriteFile(pidFilePath, []byte(strconv.Itoa(os.Getpid())), 0o644)
	defer os.Remove(pidFilePath)
	defer os.Remove(socketPath)

	d.listener = listener
	slog.Info(fmt.Sprintf("Daemon listening on %s", socketPath))

	// Background sweep for expired queue sessions
	go d.queue.Run(d.ctx)

	// Watch config file for changes
	d.watchConfig()

	// Graceful shutdown on SIGTERM/SIGINT
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-shutdownChan
		slog.Info("Shutdown signal received. Stopping server and tunnels.")
		d.shutdown()
		if d.listener != nil {
			d.listener.Close()
		}
		os.Exit(0)
	}()

	// Accept connections in a loop
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			if !strings.Contains(err.Error(), "use of closed network connection") {
				slog.Info(fmt.Sprintf("Error accepting connection: %v", err))
			}
			break
		}
		go d.handleConnection(conn)
	}
}

// parseStreamArgs reads the optional line count and no_history flag shared
// by the LOGS and ATTACH commands.
func parseStreamArgs(args []string, defaultLines int) (int, bool) {
	lines := defaultLines
	showHistory := true
	if len(args) >= 1 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			lines = n
		}
		if args[0] == "no_history" || (len(args) >= 2 && args[1] == "no_history") {
			showHistory = false
		}
	}
	return lines, showHistory
}

func (d *Daemon) handleConnection(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}

	parts := strings.Fields(scanner.Text())
	if len(parts) == 0 {
		return
	}
	command, args := parts[0], parts[1:]
	started := time.Now()

	// Heartbeats arrive every few seconds per waiting session; logging them
	// would drown everything else
	if command != "VERSION" && command != "HEARTBEAT" {
		if len(args) > 0 {
			slog.Info(fmt.Sprintf("Executing command: %s %v", command, args))
		} else {
			slog.Info(fmt.Sprintf("Executing command: %s", command))
		}
	}

	var response Response
	switch command {
	case "VERSION":
		response = d.getVersion()
	case "STATUS":
		response = d.getStatus()
	case "QUIT":
		response.AddMessage("Stopping daemon...", "INFO")
		conn.Write([]byte(response.ToJSON() + "\n"))
		slog.Info("Quit command received. Shutting down daemon.")
		d.shutdown()
		if d.listener != nil {
			d.listener.Close()
		}
		os.Exit(0)
	case "BOOT":
		response = d.runSaga(conn, "Boot", d.saga.Boot)
	case "SHUTDOWN":
		response = d.runSaga(conn, "Shutdown", d.saga.Shutdown)
	case "SAGA":
		d.metrics.Record(command, time.Since(started), false)
		d.handleSagaTrail(conn)
		return
	case "SERVER_START":
		response = d.startServer()
	case "SERVER_STOP":
		response = d.stopServer()
	case "SERVER_RESTART":
		response = d.restartServer()
	case "SERVER_STATUS":
		response.AddData(d.server.Status())
		response.AddMessage("OK", "INFO")
	case "LOGS":
		lines, showHistory := parseStreamArgs(args, core.Config.Server.LogHistory)
		d.metrics.Record(command, time.Since(started), false)
		d.handleServerLogs(conn, showHistory, lines)
		return
	case "ATTACH":
		lines, showHistory := parseStreamArgs(args, 20)
		d.metrics.Record(command, time.Since(started), false)
		d.handleAttach(conn, showHistory, lines)
		return
	case "JOIN":
		response = d.joinQueue(args)
	case "HEARTBEAT":
		response = d.heartbeat(args)
	case "LEAVE":
		response = d.leaveQueue(args)
	case "QUEUE_STATUS":
		response.AddData(d.queue.Status())
		response.AddMessage("OK", "INFO")
	case "TUNNEL_START":
		response = d.startTunnel(args)
	case "TUNNEL_STOP":
		response = d.stopTunnel(args)
	case "LINKS":
		response = d.getLinks()
	case "PRESET_SAVE":
		response = d.savePreset(args)
	case "PRESET_LIST":
		response = d.listPresets()
	case "PRESET_LOAD":
		response = d.loadPreset(args)
	case "PRESET_DELETE":
		response = d.deletePreset(args)
	case "CONFIG_GET":
		response = d.getProjectConfig()
	case "CONFIG_SET":
		response = d.setProjectConfig(args)
	case "METRICS":
		response.AddData(map[string]interface{}{
			"summary": d.metrics.Summary(),
			"recent":  d.metrics.Recent(20),
		})
		response.AddMessage("OK", "INFO")
	default:
		response.AddMessage("Unknown command.", "ERROR")
	}

	d.metrics.Record(command, time.Since(started), response.HasErrors())
	conn.Write([]byte(response.ToJSON() + "\n"))
}

// runSaga executes a boot or shutdown while streaming the trail to the
// client as it grows.
func (d *Daemon) runSaga(conn net.Conn, label string, op func(context.Context) error) Response {
	response := Response{}
	stream := NewStreamingResponse(conn)

	trail := d.saga.Subscribe()
	done := make(chan error, 1)
	go func() { done <- op(d.ctx) }()

	writeEntry := func(entry boot.TrailEntry) {
		status := "INFO"
		if entry.IsError {
			status = "ERROR"
		}
		stream.WriteMessage(entry.Message, status)
	}

	for {
		select {
		case entry := <-trail:
			writeEntry(entry)
		case err := <-done:
			// Drain entries that raced with completion
			for {
				select {
				case entry := <-trail:
					writeEntry(entry)
					continue
				default:
				}
				break
			}
			d.saga.Unsubscribe(trail)
			if err != nil {
				response.AddMessage(fmt.Sprintf("%s failed: %v", label, err), "ERROR")
			} else {
				response.AddMessage(fmt.Sprintf("%s complete", label), "INFO")
			}
			return response
		}
	}
}

func (d *Daemon) startServer() Response {
	response := Response{}

	project, err := d.store.GetProject()
	if err != nil {
		response.AddMessage(fmt.Sprintf("Failed to read project configuration: %v", err), "ERROR")
		return response
	}
	if project.Command == "" {
		response.AddMessage("No server command configured. Set one with 'greenroom config set command ...'", "ERROR")
		return response
	}

	pid, err := d.server.Start(project.Command, project.Directory)
	if err != nil {
		response.AddMessage(fmt.Sprintf("Failed to start server: %v", err), "ERROR")
		return response
	}

	if err := d.store.LogEvent("server", "start", fmt.Sprintf("pid %d: %s", pid, project.Command)); err != nil {
		slog.Error("Failed to log server start", "error", err)
	}
	response.AddMessage(fmt.Sprintf("Server started (pid %d)", pid), "INFO")
	return response
}

func (d *Daemon) stopServer() Response {
	response := Response{}

	if err := d.server.Stop(); err != nil {
		response.AddMessage(fmt.Sprintf("Failed to stop server: %v", err), "ERROR")
		return response
	}

	if err := d.store.LogEvent("server", "stop", ""); err != nil {
		slog.Error("Failed to log server stop", "error", err)
	}
	response.AddMessage("Server stopped", "INFO")
	return response
}

func (d *Daemon) restartServer() Response {
	response := Response{}

	pid, err := d.server.Restart()
	if err != nil {
		response.AddMessage(fmt.Sprintf("Failed to restart server: %v", err), "ERROR")
		return response
	}

	if err := d.store.LogEvent("server", "restart", fmt.Sprintf("pid %d", pid)); err != nil {
		slog.Error("Failed to log server restart", "error", err)
	}
	response.AddMessage(fmt.Sprintf("Server restarted (pid %d)", pid), "INFO")
	return response
}

func (d *Daemon) joinQueue(args []string) Response {
	response := Response{}

	var sessionID string
	var operator bool
	for _, arg := range args {
		if arg == "operator" {
			operator = true
			continue
		}
		sessionID = arg
	}

	ticket, err := d.queue.Join(sessionID, operator)
	if err != nil {
		response.AddMessage(fmt.Sprintf("Failed to join queue: %v", err), "ERROR")
		return response
	}

	response.AddData(ticket)
	if ticket.State == admission.StateActive {
		response.AddMessage("You're up", "INFO")
	} else {
		response.AddMessage(fmt.Sprintf("You're number %d in line", ticket.Position), "INFO")
	}
	return response
}

func (d *Daemon) heartbeat(args []string) Response {
	response := Response{}

	if len(args) < 1 {
		response.AddMessage("Usage: HEARTBEAT <session_id>", "ERROR")
		return response
	}

	ticket, err := d.queue.Heartbeat(args[0])
	if err != nil {
		response.AddMessage(fmt.Sprintf("Heartbeat rejected: %v", err), "ERROR")
		return response
	}

	response.AddData(ticket)
	response.AddMessage("OK", "INFO")
	return response
}

func (d *Daemon) leaveQueue(args []string) Response {
	response := Response{}

	if len(args) < 1 {
		response.AddMessage("Usage: LEAVE <session_id>", "ERROR")
		return response
	}

	if err := d.queue.Leave(args[0]); err != nil {
		response.AddMessage(fmt.Sprintf("Failed to leave queue: %v", err), "ERROR")
		return response
	}

	response.AddMessage("Left the queue", "INFO")
	return response
}

func (d *Daemon) startTunnel(args []string) Response {
	response := Response{}

	if len(args) < 1 {
		response.AddMessage("Usage: TUNNEL_START <name>", "ERROR")
		return response
	}
	name := args[0]

	project, err := d.store.GetProject()
	if err != nil {
		response.AddMessage(fmt.Sprintf("Failed to read project configuration: %v", err), "ERROR")
		return response
	}

	url, err := d.tunnels.Start(d.ctx, name, project.Port)
	if err != nil {
		response.AddMessage(fmt.Sprintf("Failed to start tunnel '%s': %v", name, err), "ERROR")
		return response
	}

	if err := d.store.LogEvent("tunnel", "start", fmt.Sprintf("%s: %s", name, url)); err != nil {
		slog.Error("Failed to log tunnel start", "error", err)
	}
	response.AddData(map[string]string{"name": name, "url": url})
	response.AddMessage(fmt.Sprintf("Tunnel %s up: %s", name, url), "INFO")
	return response
}

func (d *Daemon) stopTunnel(args []string) Response {
	response := Response{}

	if len(args) < 1 {
		response.AddMessage("Usage: TUNNEL_STOP <name>", "ERROR")
		return response
	}
	name := args[0]

	if err := d.tunnels.Stop(name); err != nil {
		response.AddMessage(fmt.Sprintf("Failed to stop tunnel '%s': %v", name, err), "ERROR")
		return response
	}

	if err := d.store.LogEvent("tunnel", "stop", name); err != nil {
		slog.Error("Failed to log tunnel stop", "error", err)
	}
	response.AddMessage(fmt.Sprintf("Tunnel %s stopped", name), "INFO")
	return response
}

func (d *Daemon) getLinks() Response {
	response := Response{}

	project, err := d.store.GetProject()
	if err != nil {
		response.AddMessage(fmt.Sprintf("Failed to read project configuration: %v", err), "ERROR")
		return response
	}

	links := tunnel.Links(project.Port, project.LanEnabled, d.tunnels.Status())
	response.AddData(links)
	response.AddMessage("OK", "INFO")
	return response
}

func (d *Daemon) savePreset(args []string) Response {
	response := Response{}

	if len(args) < 1 {
		response.AddMessage("Usage: PRESET_SAVE <name>", "ERROR")
		return response
	}
	name := args[0]

	project, err := d.store.GetProject()
	if err != nil {
		response.AddMessage(fmt.Sprintf("Failed to read project configuration: %v", err), "ERROR")
		return response
	}

	if err := d.store.SavePreset(name, project.Directory, project.Command, project.Port); err != nil {
		response.AddMessage(fmt.Sprintf("Failed to save preset '%s': %v", name, err), "ERROR")
		return response
	}

	response.AddMessage(fmt.Sprintf("Preset '%s' saved", name), "INFO")
	return response
}

func (d *Daemon) listPresets() Response {
	response := Response{}

	presets, err := d.store.ListPresets()
	if err != nil {
		response.AddMessage(fmt.Sprintf("Failed to list presets: %v", err), "ERROR")
		return response
	}

	response.AddData(presets)
	if len(presets) == 0 {
		response.AddMessage("No presets saved", "WARN")
	} else {
		response.AddMessage("OK", "INFO")
	}
	return response
}

func (d *Daemon) loadPreset(args []string) Response {
	response := Response{}

	if len(args) < 1 {
		response.AddMessage("Usage: PRESET_LOAD <name>", "ERROR")
		return response
	}
	name := args[0]

	project, err := d.store.LoadPreset(name)
	if err != nil {
		response.AddMessage(fmt.Sprintf("Failed to load preset '%s': %v", name, err), "ERROR")
		return response
	}

	response.AddData(project)
	response.AddMessage(fmt.Sprintf("Preset '%s' loaded: %q on port %d", name, project.Command, project.Port), "INFO")
	return response
}

func (d *Daemon) deletePreset(args []string) Response {
	response := Response{}

	if len(args) < 1 {
		response.AddMessage("Usage: PRESET_DELETE <name>", "ERROR")
		return response
	}
	name := args[0]

	if err := d.store.DeletePreset(name); err != nil {
		response.AddMessage(fmt.Sprintf("Failed to delete preset '%s': %v", name, err), "ERROR")
		return response
	}

	response.AddMessage(fmt.Sprintf("Preset '%s' deleted", name), "INFO")
	return response
}

func (d *Daemon) getProjectConfig() Response {
	response := Response{}

	project, err := d.store.GetProject()
	if err != nil {
		response.AddMessage(fmt.Sprintf("Failed to read project configuration: %v", err), "ERROR")
		return response
	}

	response.AddData(project)
	response.AddMessage("OK", "INFO")
	return response
}

func (d *Daemon) setProjectConfig(args []string) Response {
	response := Response{}

	if len(args) < 2 {
		response.AddMessage("Usage: CONFIG_SET <field> <value>", "ERROR")
		return response
	}
	field := args[0]
	// Commands and directories may contain spaces
	value := strings.Join(args[1:], " ")

	project, err := d.store.GetProject()
	if err != nil {
		response.AddMessage(fmt.Sprintf("Failed to read project configuration: %v", err), "ERROR")
		return response
	}

	switch field {
	case "name":
		project.Name = value
	case "directory":
		project.Directory = value
	case "command":
		project.Command = value
	case "port":
		port, err := strconv.Atoi(value)
		if err != nil || port < 1 || port > 65535 {
			response.AddMessage(fmt.Sprintf("Invalid port: %q", value), "ERROR")
			return response
		}
		project.Port = port
	case "lan", "ngrok", "cloudflare", "queue":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			response.AddMessage(fmt.Sprintf("Invalid boolean: %q", value), "ERROR")
			return response
		}
		switch field {
		case "lan":
			project.LanEnabled = enabled
		case "ngrok":
			project.NgrokEnabled = enabled
		case "cloudflare":
			project.CloudflareEnabled = enabled
		case "queue":
			project.QueueEnabled = enabled
		}
	default:
		response.AddMessage(fmt.Sprintf("Unknown field: %q", field), "ERROR")
		return response
	}

	if err := d.store.UpdateProject(project); err != nil {
		response.AddMessage(fmt.Sprintf("Failed to update project configuration: %v", err), "ERROR")
		return response
	}

	response.AddData(project)
	response.AddMessage(fmt.Sprintf("Set %s = %s", field, value), "INFO")
	return response
}

// DaemonStatus is the composite view returned by STATUS
type DaemonStatus struct {
	Version string             `json:"version"`
	Pid     int                `json:"pid"`
	Project store.Project      `json:"project"`
	Server  supervisor.Status  `json:"server"`
	Tunnels []tunnel.Info      `json:"tunnels"`
	Queue   admission.Snapshot `json:"queue"`
	Saga    boot.SagaState     `json:"saga"`
}

func (d *Daemon) getStatus() Response {
	response := Response{}

	project, err := d.store.GetProject()
	if err != nil {
		response.AddMessage(fmt.Sprintf("Failed to read project configuration: %v", err), "ERROR")
		return response
	}

	response.AddData(DaemonStatus{
		Version: core.FormatVersion(core.Version),
		Pid:     os.Getpid(),
		Project: project,
		Server:  d.server.Status(),
		Tunnels: d.tunnels.Status(),
		Queue:   d.queue.Status(),
		Saga:    d.saga.Status().State,
	})
	response.AddMessage("OK", "INFO")
	return response
}

func (d *Daemon) getVersion() Response {
	response := Response{}

	response.AddMessage("OK", "INFO")
	response.AddData(map[string]interface{}{
		"version": core.Version,
		"pid":     os.Getpid(),
	})
	return response
}

func (d *Daemon) shutdown() {
	d.shutdownOnce.Do(func() {
		slog.Info("Executing shutdown sequence...")

		if err := d.server.Stop(); err != nil {
			slog.Error("Failed to stop server during shutdown", "error", err)
		}
		if err := d.tunnels.StopAll(); err != nil {
			slog.Error("Failed to stop tunnels during shutdown", "error", err)
		}

		if d.cancelFunc != nil {
			d.cancelFunc()
		}

		if d.store != nil {
			version := core.FormatVersion(core.Version)
			if err := d.store.LogEvent("daemon", "stop", fmt.Sprintf("version: %s, PID: %d", version, os.Getpid())); err != nil {
				slog.Error("Failed to log daemon stop event", "error", err)
			}
			if err := d.store.Close(); err != nil {
				slog.Error("Failed to close database during shutdown", "error", err)
			}
		}
	})
}

// reloadConfig reloads the configuration file, keeping the old one on error
func (d *Daemon) reloadConfig() error {
	oldConfig := core.Config

	configPath := core.GetConfigFilePath()
	newConfig, err := core.LoadConfig(configPath)
	if err != nil {
		slog.Error("Configuration file has errors, keeping previous configuration",
			"file", configPath,
			"error", err)
		return fmt.Errorf("config parse error")
	}

	newConfig.ConfigPath = oldConfig.ConfigPath
	newConfig.Verbose = oldConfig.Verbose
	core.Config = newConfig

	slog.Info("Configuration reloaded successfully")
	return nil
}

// watchConfig sets up automatic config file watching
func (d *Daemon) watchConfig() {
	configPath := core.GetConfigFilePath()
	if _, err := os.Stat(configPath); err != nil {
		slog.Debug("No config file to watch", "path", configPath)
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("Failed to create config file watcher", "error", err)
		return
	}

	if err := watcher.Add(configPath); err != nil {
		slog.Error("Failed to watch config file", "error", err, "path", configPath)
		watcher.Close()
		return
	}

	var reloadTimer *time.Timer
	var reloadMutex sync.Mutex

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-d.ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				// Editors using atomic writes remove the original from the
				// watch list, so re-add after RENAME/REMOVE/CREATE. The file
				// may not exist yet mid-rename, hence the retries.
				if event.Op&(fsnotify.Rename|fsnotify.Remove|fsnotify.Create) != 0 {
					go func() {
						for attempt := 0; attempt < 5; attempt++ {
							if attempt > 0 {
								delay := time.Duration(10<<uint(attempt-1)) * time.Millisecond
								time.Sleep(delay)
							}
							watcher.Remove(configPath)
							if err := watcher.Add(configPath); err == nil {
								return
							} else if attempt == 4 {
								slog.Error("Failed to re-add watch after multiple attempts", "error", err, "path", configPath)
							}
						}
					}()
				}

				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}

				reloadMutex.Lock()
				// Debounce: wait 500ms after last change before reloading
				if reloadTimer != nil {
					reloadTimer.Stop()
				}
				reloadTimer = time.AfterFunc(500*time.Millisecond, func() {
					slog.Info("Configuration file changed, reloading...", "file", event.Name)
					if err := d.reloadConfig(); err != nil {
						slog.Debug("Config reload failed", "error", err)
					}
				})
				reloadMutex.Unlock()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Config file watcher error", "error", err)
			}
		}
	}()

	slog.Info("Watching configuration file for changes")
}

// Command agent is the per-host daemon: it provisions Docker containers and
// libvirt/QEMU VMs, runs the OVS Docker network plugin, bridges labs across
// hosts over VXLAN, multiplexes VM serial consoles, and answers the
// controller's HTTP API (spec section 6). Kept thin — all of the wiring
// lives in runAgent, mirroring the teacher's own cmd/scon-agent main, which
// does nothing but set the process name and call into the agent package.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/archetype-labs/agent/internal/config"
	"github.com/archetype-labs/agent/internal/console"
	"github.com/archetype-labs/agent/internal/dockerprovider"
	"github.com/archetype-labs/agent/internal/httpapi"
	"github.com/archetype-labs/agent/internal/libvirtprovider"
	"github.com/archetype-labs/agent/internal/logging"
	"github.com/archetype-labs/agent/internal/overlay"
	"github.com/archetype-labs/agent/internal/ovsctl"
	"github.com/archetype-labs/agent/internal/ovsplugin"
	"github.com/archetype-labs/agent/internal/persistence"
	"github.com/archetype-labs/agent/internal/poap"
	"github.com/archetype-labs/agent/internal/vlan"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

func main() {
	logging.Init(config.Debug())
	cfg := config.Load()
	log := logging.For("agent")

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("agent exited")
	}
}

func run(cfg config.Config, log *logrus.Entry) error {
	ctx := context.Background()

	store := persistence.NewStore(cfg.WorkspacePath)

	bridge := ovsctl.New(cfg.OVSBridgeName)
	allocator := vlan.NewAllocator(bridge)
	plugin := ovsplugin.New(cfg.OVSBridgeName, bridge, allocator, store, logging.For("ovsplugin"))
	if cfg.EnableOVSPlugin {
		if err := plugin.Load(ctx); err != nil {
			log.WithError(err).Warn("reconcile OVS plugin state from snapshot")
		}
	}

	var dockerProv *dockerprovider.Provider
	dockerClient, err := dockerprovider.NewSDKClient(cfg.DockerSocket)
	if err != nil {
		log.WithError(err).Warn("docker unavailable, container provisioning disabled")
	} else {
		dockerProv = dockerprovider.NewProvider(dockerClient, plugin, cfg.WorkspacePath, logging.For("dockerprovider"))
	}

	locker := console.NewLocker()
	registry := console.NewRegistry()
	prober := console.NewProber(locker, cfg.LibvirtURI)
	extractor := console.NewExtractor(locker, registry, cfg.LibvirtURI)

	virtClient := libvirtprovider.NewSDKClient(cfg.LibvirtURI)
	libvirtProv := libvirtprovider.NewProvider(virtClient, plugin, cfg.WorkspacePath, logging.For("libvirtprovider"),
		libvirtprovider.WithConsolePoller(prober))

	var overlayMgr *overlay.Manager
	if cfg.EnableVXLAN {
		overlayMgr = overlay.NewManager(bridge)
	}

	apiServer := httpapi.NewServer(httpapi.Deps{
		Docker:           dockerProv,
		Libvirt:          libvirtProv,
		Plugin:           plugin,
		Overlay:          overlayMgr,
		ConsoleRegistry:  registry,
		ConsoleLocker:    locker,
		ConsoleExtractor: extractor,
		LibvirtURI:       cfg.LibvirtURI,
		AuthSecret:       cfg.AuthSecret,
	}, logging.For("httpapi"))

	addr := cfg.AgentHost + ":" + strconv.Itoa(cfg.AgentPort)
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("agent HTTP API listening")
		if err := apiServer.ListenAndServe(addr); err != nil {
			errCh <- err
		}
	}()

	poapStore, err := poap.OpenStore(cfg.WorkspacePath)
	if err != nil {
		log.WithError(err).Warn("POAP store unavailable, bootstrap endpoints disabled")
	} else {
		poapHandlers := poap.NewHandlers(cfg.WorkspacePath, "http://"+cfg.LocalIP+":"+strconv.Itoa(cfg.AgentPort), poapStore, logging.For("poap"))
		poapMux := http.NewServeMux()
		poapHandlers.Register(poapMux)
		poapAddr := cfg.AgentHost + ":" + strconv.Itoa(cfg.AgentPort+1)
		go func() {
			log.WithField("addr", poapAddr).Info("POAP bootstrap listening")
			if err := http.ListenAndServe(poapAddr, poapMux); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	stopHeartbeat := make(chan struct{})
	if cfg.ControllerURL != "" {
		go runHeartbeat(cfg, log, stopHeartbeat)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGINT, unix.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig).Info("shutting down")
	case err := <-errCh:
		log.WithError(err).Error("server error, shutting down")
	}
	close(stopHeartbeat)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return apiServer.Shutdown(shutdownCtx)
}

// runHeartbeat periodically registers this agent with the controller (spec
// section 6's CONTROLLER_URL/HEARTBEAT_INTERVAL): a best-effort POST, never
// fatal to the agent process if the controller is unreachable.
func runHeartbeat(cfg config.Config, log *logrus.Entry, stop <-chan struct{}) {
	client := &http.Client{Timeout: cfg.RequestTimeout}
	ticker := time.NewTicker(cfg.HeartbeatInterval)
	defer ticker.Stop()

	send := func() {
		req, err := http.NewRequest(http.MethodPost, cfg.ControllerURL+"/agents/heartbeat", nil)
		if err != nil {
			log.WithError(err).Warn("build heartbeat request")
			return
		}
		req.Header.Set("X-Agent-Host", cfg.LocalIP)
		if cfg.ControllerSecret != "" {
			req.Header.Set("Authorization", "Bearer "+cfg.ControllerSecret)
		}
		resp, err := client.Do(req)
		if err != nil {
			log.WithError(err).Debug("heartbeat failed")
			return
		}
		resp.Body.Close()
	}

	send()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			send()
		}
	}
}

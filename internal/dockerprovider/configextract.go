package dockerprovider

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/archetype-labs/agent/internal/model"
	"github.com/archetype-labs/agent/internal/nvram"
	"github.com/archetype-labs/agent/internal/vendorcat"
	"golang.org/x/crypto/ssh"
)

// ExtractConfig pulls a node's running configuration per its vendor
// catalog entry's config_extract_method and saves it to
// {workspace}/configs/{node}/startup-config (spec section 4.2 "Config
// extraction").
func (p *Provider) ExtractConfig(ctx context.Context, labID string, node model.Node, containerIP string) (string, error) {
	dev, ok := p.catalog.Lookup(string(node.Kind))
	if !ok {
		return "", fmt.Errorf("unknown device kind %q", node.Kind)
	}

	var out string
	var err error
	switch dev.ConfigExtractMethod {
	case vendorcat.ExtractDocker:
		out, err = p.extractViaDocker(ctx, labID, node, dev)
	case vendorcat.ExtractSSH:
		out, err = p.extractViaSSH(ctx, containerIP, dev)
	case vendorcat.ExtractSerial:
		out, err = p.extractViaNVRAM(labID, node.Name)
	default:
		return "", fmt.Errorf("config extraction not supported for method %q", dev.ConfigExtractMethod)
	}
	if err != nil {
		return "", err
	}

	if err := p.saveConfig(node.Name, out); err != nil {
		return "", err
	}
	return out, nil
}

// extractViaDocker runs the vendor's extract command through exec_run,
// wrapped in bash so vendor commands that pipe (e.g. "Cli -p 15 -c '...'")
// behave the same as an interactive shell would.
func (p *Provider) extractViaDocker(ctx context.Context, labID string, node model.Node, dev vendorcat.Device) (string, error) {
	containerName := ContainerName(labID, node.Name)
	info, err := p.docker.ContainerInspect(ctx, containerName)
	if err != nil {
		return "", p.wrapf(err, "inspect %s for config extraction", containerName)
	}
	out, err := p.docker.ExecRun(ctx, info.ID, []string{"bash", "-c", dev.ConfigExtractCommand})
	if err != nil {
		return "", p.wrapf(err, "exec config extract on %s", containerName)
	}
	return out, nil
}

// extractViaSSH dials the node's management IP directly with
// golang.org/x/crypto/ssh rather than shelling out to sshpass; vendor
// devices extracted this way use a fixed, catalog-known account (spec
// section 4.2).
func (p *Provider) extractViaSSH(ctx context.Context, containerIP string, dev vendorcat.Device) (string, error) {
	if containerIP == "" {
		return "", fmt.Errorf("no management ip available for ssh config extraction")
	}
	cmd := dev.ConfigExtractCommand
	if cmd == "" {
		cmd = "show running-config"
	}
	user, pass := dev.SSHUsername, dev.SSHPassword
	if user == "" {
		user = "admin"
	}

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.Password(pass)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	dialer := net.Dialer{Timeout: config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(containerIP, "22"))
	if err != nil {
		return "", fmt.Errorf("dial ssh for config extraction: %w", err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, containerIP+":22", config)
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("ssh handshake for config extraction: %w", err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("open ssh session for config extraction: %w", err)
	}
	defer session.Close()

	out, err := session.CombinedOutput(cmd)
	if err != nil {
		return "", fmt.Errorf("ssh config extraction: %w", err)
	}
	return string(out), nil
}

// extractViaNVRAM reads IOL's NVRAM data volume directly rather than
// running an interactive command: IOL (config_extract_method="serial")
// has no docker-exec CLI worth scripting, but persists its running
// config as an ASCII block inside {workspace}/{lab}/configs/{node}/
// iol-data/nvram_00001 (spec section 6).
func (p *Provider) extractViaNVRAM(labID, nodeName string) (string, error) {
	out, err := nvram.ExtractFromWorkspace(p.workspacePath, labID, sanitize(nodeName))
	if err != nil {
		return "", fmt.Errorf("nvram config extraction for %s: %w", nodeName, err)
	}
	if out == "" {
		return "", fmt.Errorf("no recognizable config found in nvram for %s", nodeName)
	}
	return out, nil
}

func (p *Provider) saveConfig(nodeName, content string) error {
	dir := filepath.Join(p.workspacePath, "configs", sanitize(nodeName))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	path := filepath.Join(dir, "startup-config")
	if err := os.WriteFile(path, []byte(strings.TrimRight(content, "\n")+"\n"), 0o644); err != nil {
		return fmt.Errorf("write startup-config: %w", err)
	}
	return nil
}

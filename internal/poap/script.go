package poap

import "fmt"

// scriptTemplate is the POAP bootstrap script an N9Kv's bootloader runs
// after DHCP option 67 points it here: it downloads the node's startup
// config and copies it into bootflash so the device boots pre-configured.
// Cisco's POAP bootloader interprets this as Python 2 (NX-OS's on-box
// interpreter), so no Go-side templating library is warranted — this is
// one fixed string with a single substitution.
const scriptTemplate = `#!/usr/bin/env python
# Archetype POAP bootstrap script - generated, do not edit by hand.
import httplib
import urlparse

CONFIG_URL = "%s"
BOOTFLASH_CONFIG = "bootflash:poap_startup_config.cfg"

def poap_log(msg):
    print("POAP: " + msg)

def download_config():
    parsed = urlparse.urlparse(CONFIG_URL)
    conn = httplib.HTTPConnection(parsed.netloc)
    conn.request("GET", parsed.path)
    resp = conn.getresponse()
    if resp.status != 200:
        poap_log("failed to fetch startup config: HTTP %%d" %% resp.status)
        return False
    with open("/" + BOOTFLASH_CONFIG.replace("bootflash:", "bootflash/"), "wb") as f:
        f.write(resp.read())
    return True

nxos_commands = [
    "copy bootflash:startup-config startup-config",
]

if __name__ == "__main__":
    if download_config():
        poap_log("startup config downloaded, applying")
        for cmd in nxos_commands:
            poap_cli(cmd)
    else:
        poap_log("no startup config available, continuing with factory default")
`

// Script renders the POAP bootstrap script for a node, with its
// startup-config download URL pointed back at this agent.
func Script(agentBaseURL, labID, nodeName string) string {
	configURL := fmt.Sprintf("%s/poap/%s/%s/startup-config", agentBaseURL, labID, nodeName)
	return fmt.Sprintf(scriptTemplate, configURL)
}

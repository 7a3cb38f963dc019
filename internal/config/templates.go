package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "broker":
		return brokerTemplate, nil
	case "client":
		return clientTemplate, nil
	case "directory":
		return directoryTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

// Validate loads path as a config of the given kind.
func Validate(kind, path string) error {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "broker":
		_, err := LoadBrokerFile(path)
		return err
	case "client":
		_, err := LoadClientFile(path)
		return err
	case "directory":
		_, err := LoadDirectoryFile(path)
		return err
	default:
		return fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const brokerTemplate = `addr = ":7777"
directory_addr = "127.0.0.1:7778"
admin_addr = "127.0.0.1:7070"
buffer_size = 4096
redial_initial = "250ms"
redial_max = "5s"
`

const clientTemplate = `broker = "127.0.0.1:7777"
login = "alice"
# password = ""
dir = "./files"
private_addr = ":0"
chunk_window = 64
reassembly_size = 524288
`

// Replace the sample hash with the output of chatdirectory -hash.
const directoryTemplate = `addr = ":7778"

[[users]]
login = "alice"
hash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"
`

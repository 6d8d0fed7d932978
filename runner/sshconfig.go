package runner

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// ParseSSHConfig reads hosts from an OpenSSH client config file,
// following Include directives. An empty path means ~/.ssh/config.
// Wildcard Host entries are skipped; they describe defaults, not
// destinations.
func ParseSSHConfig(configPath string) ([]Host, error) {
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(home, ".ssh", "config")
	}

	visited := make(map[string]bool)
	return parseSSHConfigRecursive(configPath, visited)
}

// FindSSHHost returns the config entry whose Host name matches name,
// or a bare Host that dials name directly when no entry matches.
func FindSSHHost(configPath, name string) (Host, error) {
	hosts, err := ParseSSHConfig(configPath)
	if err != nil && !os.IsNotExist(err) {
		return Host{}, err
	}
	for _, h := range hosts {
		if h.Name == name {
			return h, nil
		}
	}
	return Host{Name: name}, nil
}

func parseSSHConfigRecursive(configPath string, visited map[string]bool) ([]Host, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, err
	}

	if visited[absPath] {
		return nil, nil
	}
	visited[absPath] = true

	file, err := os.Open(configPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var hosts []Host
	var currentHost *Host

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}

		key := strings.ToLower(parts[0])
		value := strings.Join(parts[1:], " ")

		if key == "include" {
			includePath := expandPath(value)

			if !filepath.IsAbs(includePath) {
				configDir := filepath.Dir(configPath)
				includePath = filepath.Join(configDir, includePath)
			}

			matches, err := filepath.Glob(includePath)
			if err != nil {
				continue
			}

			for _, match := range matches {
				includedHosts, err := parseSSHConfigRecursive(match, visited)
				if err != nil {
					continue
				}
				hosts = append(hosts, includedHosts...)
			}
			continue
		}

		if key == "host" {
			if currentHost != nil && !strings.Contains(currentHost.Name, "*") && !strings.Contains(currentHost.Name, "?") {
				hosts = append(hosts, *currentHost)
			}

			currentHost = &Host{
				Name: value,
				Port: "22",
			}
		} else if currentHost != nil {
			switch key {
			case "hostname":
				currentHost.Hostname = value
			case "user":
				currentHost.User = value
			case "port":
				currentHost.Port = value
			case "identityfile":
				currentHost.IdentityFile = expandPath(value)
			}
		}
	}

	if currentHost != nil && !strings.Contains(currentHost.Name, "*") && !strings.Contains(currentHost.Name, "?") {
		hosts = append(hosts, *currentHost)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return hosts, nil
}

func expandPath(path string) string {
	if path == "" {
		return ""
	}

	path = filepath.Clean(path)

	if strings.Contains(path, "..") {
		return ""
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		expandedPath := filepath.Join(home, path[2:])

		absHome, err := filepath.Abs(home)
		if err != nil {
			return ""
		}
		absPath, err := filepath.Abs(expandedPath)
		if err != nil {
			return ""
		}

		if !strings.HasPrefix(absPath, absHome) {
			return ""
		}

		return expandedPath
	}

	if filepath.IsAbs(path) {
		home, _ := os.UserHomeDir()
		sshDir := filepath.Join(home, ".ssh")

		absPath, err := filepath.Abs(path)
		if err != nil {
			return ""
		}

		if strings.HasPrefix(absPath, sshDir) || strings.HasPrefix(absPath, "/etc/ssh") {
			return path
		}

		return ""
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", path)
}

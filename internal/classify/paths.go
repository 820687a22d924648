package classify

import (
	"net"
	"net/url"
	"path"
	"strings"
)

// criticalFiles are single files whose modification compromises the host.
var criticalFiles = []string{
	"/etc/passwd",
	"/etc/shadow",
	"/etc/group",
	"/etc/gshadow",
	"/etc/sudoers",
	"/etc/hosts",
	"/etc/crontab",
	"/etc/profile",
	"/etc/environment",
	"/etc/ld.so.preload",
	"~/.bashrc",
	"~/.bash_profile",
	"~/.profile",
	"~/.zshrc",
	"/root/.bashrc",
	"/root/.profile",
}

// criticalTrees are directories where any write is critical. Components may
// be globs.
var criticalTrees = []string{
	"/etc/sudoers.d",
	"/etc/ssh",
	"/etc/pam.d",
	"/etc/cron.d",
	"/etc/cron.daily",
	"/etc/cron.hourly",
	"/etc/systemd",
	"/boot",
	"/var/spool/cron",
	"~/.ssh",
	"~/.gnupg",
	"~/.aws",
	"/root/.ssh",
	"/home/*/.ssh",
	"/Users/*/.ssh",
}

// secretPatterns match files holding credential material. Reading them is
// not destructive but still leaks what the host protects.
var secretPatterns = []string{
	"~/.ssh/id_*",
	"/root/.ssh/id_*",
	"/home/*/.ssh/id_*",
	"~/.aws/credentials",
	"~/.netrc",
	"~/.docker/config.json",
	"~/.kube/config",
	"/etc/shadow",
	"/etc/gshadow",
	"/proc/*/environ",
}

// secretNames match by base name anywhere in the tree.
var secretNames = []string{
	".env",
	".env.local",
	".env.production",
	"credentials.json",
	"*.kdbx",
	"*.pem",
	"id_rsa",
	"id_ed25519",
}

var systemDirs = map[string]bool{
	"/etc": true, "/usr": true, "/usr/local": true, "/var": true,
	"/boot": true, "/sys": true, "/proc": true, "/lib": true,
	"/lib64": true, "/sbin": true, "/bin": true, "/opt": true,
	"/dev": true, "/var/log": true, "/var/lib": true, "/usr/bin": true,
	"/usr/lib": true, "/usr/sbin": true, "/srv": true,
	"/System": true, "/Library": true, "/Applications": true,
}

// normalizePath maps $HOME spellings onto "~" and cleans the result.
func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	for _, home := range []string{"${HOME}", "$HOME"} {
		if p == home || strings.HasPrefix(p, home+"/") {
			p = "~" + strings.TrimPrefix(p, home)
			break
		}
	}
	if p == "" {
		return ""
	}
	return path.Clean(p)
}

// IsCriticalPath reports whether writing to p compromises the host.
func IsCriticalPath(p string) bool {
	p = normalizePath(p)
	if p == "" {
		return false
	}
	for _, f := range criticalFiles {
		if p == f {
			return true
		}
	}
	for _, tree := range criticalTrees {
		if underTree(p, tree) {
			return true
		}
	}
	return path.Base(p) == "authorized_keys"
}

// climbsToCriticalPath reports a relative path that leaves the working
// directory through ".." and, resolved from a shallow enough directory,
// lands on a security-critical path.
func climbsToCriticalPath(p string) bool {
	p = normalizePath(p)
	if p != ".." && !strings.HasPrefix(p, "../") {
		return false
	}
	for p == ".." || strings.HasPrefix(p, "../") {
		p = strings.TrimPrefix(strings.TrimPrefix(p, ".."), "/")
	}
	return p != "" && IsCriticalPath("/"+p)
}

// IsSecretPath reports whether p holds credential material.
func IsSecretPath(p string) bool {
	p = normalizePath(p)
	if p == "" {
		return false
	}
	for _, pat := range secretPatterns {
		if ok, _ := path.Match(pat, p); ok {
			return true
		}
	}
	base := path.Base(p)
	for _, pat := range secretNames {
		if ok, _ := path.Match(pat, base); ok {
			return true
		}
	}
	return false
}

// underTree matches p against tree and everything below it.
func underTree(p, tree string) bool {
	want := strings.Split(tree, "/")
	got := strings.Split(p, "/")
	if len(got) < len(want) {
		return false
	}
	ok, _ := path.Match(tree, strings.Join(got[:len(want)], "/"))
	return ok
}

// isRootTarget matches "/", "/*" and "/." style spellings of the root.
func isRootTarget(p string) bool {
	p = strings.TrimSpace(p)
	if p == "" {
		return false
	}
	p = strings.TrimSuffix(p, "*")
	return p == "/" || normalizePath(p) == "/"
}

// isHomeTarget matches a home directory itself, not a file inside one.
func isHomeTarget(p string) bool {
	p = normalizePath(strings.TrimSuffix(strings.TrimSpace(p), "*"))
	switch p {
	case "~", "/root", "/home", "/Users":
		return true
	}
	for _, pat := range []string{"/home/*", "/Users/*"} {
		if ok, _ := path.Match(pat, p); ok {
			return true
		}
	}
	return false
}

func isSystemDir(p string) bool {
	p = normalizePath(strings.TrimSuffix(strings.TrimSpace(p), "*"))
	return systemDirs[p]
}

func isBlockDevice(p string) bool {
	for _, prefix := range []string{
		"/dev/sd", "/dev/hd", "/dev/nvme", "/dev/vd", "/dev/xvd",
		"/dev/md", "/dev/dm-", "/dev/loop", "/dev/mmcblk", "/dev/disk",
		"/dev/rdisk", "/dev/mapper/",
	} {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// isDestructiveTarget is a root, home or system directory.
func isDestructiveTarget(p string) bool {
	return isRootTarget(p) || isHomeTarget(p) || isSystemDir(p)
}

// sensitiveEndpoints are URL fragments for payment and credential APIs.
var sensitiveEndpoints = []string{
	"/checkout",
	"/payment",
	"stripe.com/v1/charges",
	"stripe.com/v1/payment_intents",
	"paypal.com/v1/payments",
	"paypal.com/v2/checkout",
	"/oauth/token",
	"/api/keys",
	"/account/delete",
	"/settings/security",
}

var metadataHosts = map[string]bool{
	"169.254.169.254":          true,
	"metadata.google.internal": true,
	"metadata":                 true,
	"fd00:ec2::254":            true,
}

// isPrivateHost reports loopback, private, link-local and cloud metadata
// addresses, and the hostnames that conventionally resolve to them.
func isPrivateHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if metadataHosts[host] {
		return true
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

// urlRisk inspects a URL's host and path. ok is false when raw is not a URL.
func urlRisk(raw string) (private, sensitive, ok bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false, false, false
	}
	lower := strings.ToLower(u.Host + u.Path)
	for _, frag := range sensitiveEndpoints {
		if strings.Contains(lower, frag) {
			sensitive = true
			break
		}
	}
	return isPrivateHost(u.Hostname()), sensitive, true
}

// Package capability authorizes tool invocations against a skill's declared
// capability set. Validation is pure: no I/O, no execution, and it always runs
// before parameter binding so a caller cannot probe disallowed commands
// through crafted arguments.
package capability

import (
	"net"
	"net/url"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gobwas/glob"
	"github.com/pkg/errors"

	"github.com/skillrun-dev/skillrun/pkg/types/skill"
)

// compoundSequences are the shell metacharacters that could introduce a second
// command if the template were ever re-parsed by a shell. The template author
// controls the template, but the check stays as defense in depth.
var compoundSequences = []string{"&&", "||", ";", "|", "`", "$("}

// Validate authorizes the invocation of the named tool under the definition's
// capability set. For native skills the template head token must exactly match
// one allowlist entry and the unsubstituted template must be free of compound
// metacharacters, unless the offending sequence is itself part of a declared
// allowed tool. For sandboxed skills the declared network and filesystem
// allowlists are compiled and attached at instantiation; fine-grained
// enforcement is the sandbox boundary's job.
func Validate(def *skill.Definition, toolName string) error {
	tool, ok := def.Tool(toolName)
	if !ok {
		return &skill.CapabilityDeniedError{Denied: toolName, Reason: "is not a tool of this skill"}
	}

	if def.Kind != skill.NativeCommand {
		return nil
	}

	if tool.Template == "" {
		return &skill.CapabilityDeniedError{Denied: toolName, Reason: "declares no command template"}
	}

	head := headToken(tool.Template)
	if !allowlisted(def.Capabilities.AllowedTools, head) {
		return &skill.CapabilityDeniedError{Denied: head}
	}

	if seq := findCompoundSequence(tool.Template, def.Capabilities.AllowedTools); seq != "" {
		return &skill.CapabilityDeniedError{Denied: seq, Reason: "would introduce a compound command"}
	}

	return nil
}

// headToken returns the first whitespace-delimited word of the unsubstituted
// template.
func headToken(template string) string {
	fields := strings.Fields(template)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func allowlisted(allowed []string, head string) bool {
	for _, entry := range allowed {
		if entry == head {
			return true
		}
	}
	return false
}

// findCompoundSequence scans the template for shell metacharacter sequences.
// Allowlist entries that themselves contain a metacharacter are blanked out of
// the scan first: the author declared them deliberately.
func findCompoundSequence(template string, allowed []string) string {
	scan := template
	for _, entry := range allowed {
		if containsCompound(entry) {
			scan = strings.ReplaceAll(scan, entry, strings.Repeat(" ", len(entry)))
		}
	}
	for _, seq := range compoundSequences {
		if strings.Contains(scan, seq) {
			return seq
		}
	}
	return ""
}

func containsCompound(s string) bool {
	for _, seq := range compoundSequences {
		if strings.Contains(s, seq) {
			return true
		}
	}
	return false
}

// Grants is the compiled form of a sandboxed skill's network and filesystem
// allowlists, attached to each module instantiation. Each declared capability
// is enforced independently; there is no union semantics across classes.
type Grants struct {
	network    []glob.Glob
	filesystem []string
}

// CompileGrants compiles the declared destination globs and path prefixes.
// Invalid patterns are definition defects.
func CompileGrants(caps skill.CapabilitySet) (*Grants, error) {
	g := &Grants{}

	for _, pattern := range caps.Network {
		compiled, err := glob.Compile(pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid network destination glob %q", pattern)
		}
		g.network = append(g.network, compiled)
	}

	for _, prefix := range caps.Filesystem {
		cleaned := path.Clean(prefix)
		if cleaned == "." || cleaned == "" {
			continue
		}
		g.filesystem = append(g.filesystem, cleaned)
	}

	return g, nil
}

// AllowsHost reports whether an outbound request to the given host (or
// host:port, or full URL) matches a declared network destination.
func (g *Grants) AllowsHost(destination string) bool {
	host := destination
	if strings.Contains(destination, "://") {
		if u, err := url.Parse(destination); err == nil && u.Host != "" {
			host = u.Host
		}
	}
	// net.SplitHostPort unwraps bracketed IPv6 literals; a bare host without
	// a port is matched as-is.
	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	} else if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		hostname = host[1 : len(host)-1]
	}
	for _, compiled := range g.network {
		if compiled.Match(host) || compiled.Match(hostname) {
			return true
		}
	}
	return false
}

// AllowsPath reports whether a filesystem path falls under a declared prefix.
// Prefixes may use glob patterns; a plain prefix covers its whole subtree.
func (g *Grants) AllowsPath(p string) bool {
	cleaned := path.Clean(p)
	for _, prefix := range g.filesystem {
		if cleaned == prefix || strings.HasPrefix(cleaned, prefix+"/") {
			return true
		}
		if ok, err := doublestar.Match(prefix, cleaned); err == nil && ok {
			return true
		}
	}
	return false
}

// FilesystemPrefixes returns the cleaned declared path prefixes, used by the
// sandbox backend to pre-open exactly the granted directories.
func (g *Grants) FilesystemPrefixes() []string {
	return g.filesystem
}

package firewall

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/hkropp/routersetup/internal/backup"
	"github.com/hkropp/routersetup/internal/config"
	"github.com/hkropp/routersetup/internal/target/targettest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// packet is the input to the rule-order-sensitive simulator below.
type packet struct {
	inIface  string
	outIface string
	src      string
	proto    string
	dport    int
	icmpType string
	state    string // NEW or ESTABLISHED
}

// evaluate walks a chain the way iptables does: first matching terminal
// rule wins, LOG matches are non-terminating, unmatched packets fall
// through to the chain policy.
func evaluate(t *testing.T, rules []Rule, chain string, pkt packet) string {
	t.Helper()

	for _, rule := range rules {
		if rule.Table != "filter" || rule.Chain != chain {
			continue
		}
		if !matches(t, rule.Spec, pkt) {
			continue
		}

		target := jumpTarget(rule.Spec)
		switch target {
		case "ACCEPT", "DROP", "REJECT":
			return target
		case "LOG":
			continue
		default:
			// Jump into a custom chain.
			if verdict := evaluate(t, rules, target, pkt); verdict != "" {
				return verdict
			}
		}
	}

	for _, p := range Policies() {
		if p.Chain == chain {
			return p.Target
		}
	}
	return ""
}

func jumpTarget(spec []string) string {
	for i, tok := range spec {
		if tok == "-j" {
			return spec[i+1]
		}
	}
	return ""
}

func matches(t *testing.T, spec []string, pkt packet) bool {
	t.Helper()

	for i := 0; i < len(spec); i++ {
		switch spec[i] {
		case "-i":
			i++
			if spec[i] != pkt.inIface {
				return false
			}
		case "-o":
			i++
			if spec[i] != pkt.outIface {
				return false
			}
		case "-s":
			i++
			_, subnet, err := net.ParseCIDR(spec[i])
			require.NoError(t, err)
			if !subnet.Contains(net.ParseIP(pkt.src)) {
				return false
			}
		case "-p":
			i++
			if spec[i] != pkt.proto {
				return false
			}
		case "--dport":
			i++
			if !portMatch(t, spec[i], pkt.dport) {
				return false
			}
		case "--icmp-type":
			i++
			if spec[i] != pkt.icmpType {
				return false
			}
		case "--ctstate":
			i++
			if !strings.Contains(spec[i], pkt.state) {
				return false
			}
		case "-m", "--limit", "--log-prefix", "--log-level", "-j":
			i++
		}
	}
	return true
}

func portMatch(t *testing.T, spec string, port int) bool {
	t.Helper()

	if strings.Contains(spec, ":") {
		parts := strings.SplitN(spec, ":", 2)
		lo, err := strconv.Atoi(parts[0])
		require.NoError(t, err)
		hi, err := strconv.Atoi(parts[1])
		require.NoError(t, err)
		return port >= lo && port <= hi
	}
	want, err := strconv.Atoi(spec)
	require.NoError(t, err)
	return port == want
}

func TestRuleSet_DefaultDeny(t *testing.T) {
	rules := RuleSet(*config.Default())

	tests := []struct {
		name    string
		chain   string
		pkt     packet
		verdict string
	}{
		{
			name:    "unsolicited WAN tcp is dropped",
			chain:   "INPUT",
			pkt:     packet{inIface: "eth0", src: "203.0.113.7", proto: "tcp", dport: 8080, state: "NEW"},
			verdict: "DROP",
		},
		{
			name:    "WAN ssh attempt is dropped",
			chain:   "INPUT",
			pkt:     packet{inIface: "eth0", src: "203.0.113.7", proto: "tcp", dport: 22, state: "NEW"},
			verdict: "DROP",
		},
		{
			name:    "WAN reply traffic is accepted",
			chain:   "INPUT",
			pkt:     packet{inIface: "eth0", src: "203.0.113.7", proto: "tcp", dport: 43210, state: "ESTABLISHED"},
			verdict: "ACCEPT",
		},
		{
			name:    "LAN ssh is accepted",
			chain:   "INPUT",
			pkt:     packet{inIface: "eth1", src: "10.0.0.23", proto: "tcp", dport: 22, state: "NEW"},
			verdict: "ACCEPT",
		},
		{
			name:    "LAN dns is accepted",
			chain:   "INPUT",
			pkt:     packet{inIface: "eth1", src: "10.0.0.23", proto: "udp", dport: 53, state: "NEW"},
			verdict: "ACCEPT",
		},
		{
			name:    "LAN dhcp discover is accepted",
			chain:   "INPUT",
			pkt:     packet{inIface: "eth1", src: "10.0.0.23", proto: "udp", dport: 67, state: "NEW"},
			verdict: "ACCEPT",
		},
		{
			name:    "LAN ping is accepted",
			chain:   "INPUT",
			pkt:     packet{inIface: "eth1", src: "10.0.0.23", proto: "icmp", icmpType: "echo-request", state: "NEW"},
			verdict: "ACCEPT",
		},
		{
			name:    "LAN ntp is accepted",
			chain:   "INPUT",
			pkt:     packet{inIface: "eth1", src: "10.0.0.23", proto: "udp", dport: 123, state: "NEW"},
			verdict: "ACCEPT",
		},
		{
			name:    "loopback is accepted",
			chain:   "INPUT",
			pkt:     packet{inIface: "lo", proto: "tcp", dport: 9999, state: "NEW"},
			verdict: "ACCEPT",
		},
		{
			name:    "LAN to WAN forwarding is accepted",
			chain:   "FORWARD",
			pkt:     packet{inIface: "eth1", outIface: "eth0", src: "10.0.0.23", proto: "tcp", dport: 443, state: "NEW"},
			verdict: "ACCEPT",
		},
		{
			name:    "WAN initiated forwarding is dropped",
			chain:   "FORWARD",
			pkt:     packet{inIface: "eth0", outIface: "eth1", src: "203.0.113.7", proto: "tcp", dport: 445, state: "NEW"},
			verdict: "DROP",
		},
		{
			name:    "forwarded reply traffic is accepted",
			chain:   "FORWARD",
			pkt:     packet{inIface: "eth0", outIface: "eth1", src: "203.0.113.7", proto: "tcp", dport: 43210, state: "ESTABLISHED"},
			verdict: "ACCEPT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.verdict, evaluate(t, rules, tt.chain, tt.pkt))
		})
	}
}

func TestRuleSet_LogThenDropOrdering(t *testing.T) {
	rules := RuleSet(*config.Default())

	var logIdx, dropIdx int
	for i, rule := range rules {
		if rule.Chain != LogDropChain {
			continue
		}
		if jumpTarget(rule.Spec) == "LOG" {
			logIdx = i
		}
		if jumpTarget(rule.Spec) == "DROP" {
			dropIdx = i
		}
	}

	assert.Less(t, logIdx, dropIdx, "LOG must precede DROP in the log-then-drop pair")
}

func TestRuleSet_Masquerade(t *testing.T) {
	rules := RuleSet(*config.Default())

	var found bool
	for _, rule := range rules {
		if rule.Table == "nat" && rule.Chain == "POSTROUTING" && jumpTarget(rule.Spec) == "MASQUERADE" {
			found = true
			assert.Contains(t, rule.Spec, "10.0.0.0/24")
			assert.Contains(t, rule.Spec, "eth0")
		}
	}
	assert.True(t, found)
}

func TestRenderInitScript(t *testing.T) {
	cfg := *config.Default()
	script := RenderInitScript(cfg)

	assert.True(t, strings.HasPrefix(script, "#!/sbin/openrc-run"))
	assert.Contains(t, script, "iptables-restore < /etc/iptables/rules")
	assert.Contains(t, script, "iptables -P INPUT ACCEPT")
	assert.Equal(t, script, RenderInitScript(cfg))
}

func TestApply_FlushesBeforeAppending(t *testing.T) {
	logger := zerolog.New(io.Discard)
	host := targettest.New()
	cfg := *config.Default()

	svc := New(logger, host, backup.New(logger, host))
	result, err := svc.Apply(context.Background(), cfg)

	require.NoError(t, err)
	assert.Equal(t, len(RuleSet(cfg)), result.RulesApplied)

	var flushIdx, policyIdx, appendIdx, saveIdx int
	for i, cmd := range host.Commands {
		joined := strings.Join(cmd, " ")
		switch {
		case joined == "iptables -F" && flushIdx == 0:
			flushIdx = i + 1
		case strings.HasPrefix(joined, "iptables -P INPUT") && policyIdx == 0:
			policyIdx = i + 1
		case strings.Contains(joined, "-A INPUT") && appendIdx == 0:
			appendIdx = i + 1
		case cmd[0] == "iptables-save":
			saveIdx = i + 1
		}
	}

	require.NotZero(t, flushIdx)
	require.NotZero(t, policyIdx)
	require.NotZero(t, appendIdx)
	require.NotZero(t, saveIdx)
	assert.Less(t, flushIdx, policyIdx)
	assert.Less(t, policyIdx, appendIdx)
	assert.Less(t, appendIdx, saveIdx)
}

func TestApply_PersistsRulesAndInitScript(t *testing.T) {
	logger := zerolog.New(io.Discard)
	host := targettest.New()
	cfg := *config.Default()

	svc := New(logger, host, backup.New(logger, host))
	_, err := svc.Apply(context.Background(), cfg)
	require.NoError(t, err)

	rules, err := host.ReadFile("/etc/iptables/rules")
	require.NoError(t, err)
	assert.NotEmpty(t, rules)

	script, err := host.ReadFile("/etc/init.d/iptables-load")
	require.NoError(t, err)
	assert.Contains(t, string(script), "openrc-run")
	assert.EqualValues(t, 0o755, host.Modes["/etc/init.d/iptables-load"].Perm())
}

func TestApply_CommandFailureIsFatal(t *testing.T) {
	logger := zerolog.New(io.Discard)
	host := targettest.New()
	host.RunFunc = func(name string, args []string) ([]byte, error) {
		if name == "iptables" && args[0] == "-P" {
			return []byte("can't set policy"), errors.New("exit status 1")
		}
		return nil, nil
	}

	svc := New(logger, host, backup.New(logger, host))
	_, err := svc.Apply(context.Background(), *config.Default())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "iptables")
	// Nothing persisted after the failure.
	_, readErr := host.ReadFile("/etc/iptables/rules")
	assert.Error(t, readErr)
}

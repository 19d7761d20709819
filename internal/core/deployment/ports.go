package deployment

import "fmt"

// =============================================================================
// Port Functions
// =============================================================================

// ProtocolTCP is the only protocol a deployment publishes.
const ProtocolTCP = "tcp"

// BuildPortPlan maps hostPort to containerPort over TCP on all interfaces.
func BuildPortPlan(hostPort, containerPort int) PortPlan {
	return PortPlan{
		ContainerPort: containerPort,
		HostPort:      hostPort,
		Protocol:      ProtocolTCP,
	}
}

// Key returns the engine's port key, e.g. "80/tcp".
// Default protocol is "tcp" if empty.
func (p PortPlan) Key() string {
	proto := p.Protocol
	if proto == "" {
		proto = ProtocolTCP
	}
	return fmt.Sprintf("%d/%s", p.ContainerPort, proto)
}

package runtimedata

// DataPacket is the unit transported between nodes and across process
// boundaries. ToNode absent (empty string) means "next node in the pipeline
// order defined by the manifest".
type DataPacket struct {
	Data        RuntimeData
	FromNode    string
	ToNode      string
	SessionID   string
	Sequence    uint64
	TimestampUs uint64
	Metadata    map[string]string
}

// PortMetadataKey is the DataPacket.Metadata key carrying the destination
// port identifier for multi-input nodes.
const PortMetadataKey = "port"

// Port returns the port-tag carried in Metadata, or "" if untagged.
func (p DataPacket) Port() string {
	if p.Metadata == nil {
		return ""
	}
	return p.Metadata[PortMetadataKey]
}

// WithPort returns a copy of p tagged with the given destination port.
func (p DataPacket) WithPort(port string) DataPacket {
	out := p
	md := make(map[string]string, len(p.Metadata)+1)
	for k, v := range p.Metadata {
		md[k] = v
	}
	md[PortMetadataKey] = port
	out.Metadata = md
	return out
}

// Clone returns a copy of p whose RuntimeData is safe to mutate
// independently when the router fans a single emission out across multiple
// outgoing edges.
func (p DataPacket) Clone() DataPacket {
	out := p
	out.Data = p.Data.Clone()
	md := make(map[string]string, len(p.Metadata))
	for k, v := range p.Metadata {
		md[k] = v
	}
	out.Metadata = md
	return out
}

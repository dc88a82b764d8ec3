package wire

// ServiceName is the fully-qualified name of the sequencer node service.
const ServiceName = "movementlabs.protocol_units.da.sequencer.node.v1beta1.DaSequencerNodeService"

// Procedure paths of the service methods.
const (
	BatchWriteProcedure           = "/" + ServiceName + "/BatchWrite"
	ReadAtHeightProcedure         = "/" + ServiceName + "/ReadAtHeight"
	StreamReadFromHeightProcedure = "/" + ServiceName + "/StreamReadFromHeight"
)

// MaxMessageSize bounds a single message in either direction. It leaves room
// for a full block plus its envelope.
const MaxMessageSize = 8 << 20

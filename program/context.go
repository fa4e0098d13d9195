package program

// Context supplies the link parameters a filter is compiled against. Live
// handles and trace readers implement it, as does DeadContext.
type Context interface {
	// LinkType compliant with pcap-linktype(7)
	LinkType() uint32
	SnapLen() int
	Closed() bool
}

// DeadContext is a capture context without a handle, carrying only a link
// type and snapshot length.
type DeadContext struct {
	linkType uint32
	snapLen  int
	closed   bool
}

// OpenDead returns a synthetic context for compiling filters when no
// capture is open.
func OpenDead(linkType uint32, snapLen int) *DeadContext {
	return &DeadContext{linkType: linkType, snapLen: snapLen}
}

func (d *DeadContext) LinkType() uint32 {
	return d.linkType
}

func (d *DeadContext) SnapLen() int {
	return d.snapLen
}

// Closed is true for a nil or closed context
func (d *DeadContext) Closed() bool {
	return d == nil || d.closed
}

// Close is idempotent
func (d *DeadContext) Close() error {
	d.closed = true
	return nil
}

package iodev

type NoopDevice struct {
	Addr  uint64
	Psize uint64
}

func (n *NoopDevice) Read(addr uint64, data []byte) error {
	return nil
}

func (n *NoopDevice) Write(addr uint64, data []byte) error {
	return nil
}

func (n *NoopDevice) Base() uint64 {
	return n.Addr
}

func (n *NoopDevice) Size() uint64 {
	return n.Psize
}

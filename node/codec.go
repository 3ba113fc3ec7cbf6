package node

// Codec adapts Node's MarshalBinary/UnmarshalBinary to the generic
// converter.Codec[*Node] interface, so a Config can be bound once at
// container-construction time the way §4.2 requires ("attaches
// exactly one serializer at construction time").
type Codec struct {
	Cfg Config
}

func (c Codec) Encode(n *Node, blockSize int) ([]byte, error) {
	cfg := c.Cfg
	cfg.BlockSize = blockSize
	return n.MarshalBinary(cfg)
}

func (c Codec) Decode(raw []byte, blockSize int) (*Node, error) {
	cfg := c.Cfg
	cfg.BlockSize = blockSize
	var n Node
	if err := n.UnmarshalBinary(raw, cfg); err != nil {
		return nil, err
	}
	return &n, nil
}

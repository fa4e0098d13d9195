package filter

import "fmt"

// composite joins two expressions with 'and' or 'or'
type composite struct {
	and         bool
	left, right expr
}

func (c composite) lower(cc *compiler) (node, error) {
	l, err := c.left.lower(cc)
	if err != nil {
		return nil, err
	}
	r, err := c.right.lower(cc)
	if err != nil {
		return nil, err
	}
	if c.and {
		return allOf(l, r), nil
	}
	return anyOf(l, r), nil
}

func (c composite) String() string {
	joiner := "or"
	if c.and {
		joiner = "and"
	}
	return fmt.Sprintf("(%s %s %s)", c.left, joiner, c.right)
}

// negation inverts an expression
type negation struct {
	inner expr
}

func (n negation) lower(c *compiler) (node, error) {
	inner, err := n.inner.lower(c)
	if err != nil {
		return nil, err
	}
	return not{inner}, nil
}

func (n negation) String() string {
	return "not " + n.inner.String()
}

package carve

// Config selects the evaluator family and register budget tapes are built
// for. The zero value is not meaningful; start from NewConfig. Configs are
// immutable values: the With methods return updated copies.
type Config struct {
	regLimit    uint8
	interpreter bool
}

// NewConfig returns the default configuration: the JIT compiler family
// where the platform supports it, under the family's own register limit.
func NewConfig() Config {
	return Config{}
}

// WithInterpreter forces the portable interpreter family even on platforms
// with a compiler backend. Interpreter tapes default to an effectively
// unbounded register file.
func (c Config) WithInterpreter() Config {
	c.interpreter = true
	return c
}

// WithRegisterLimit overrides the register budget tapes are scheduled
// under. Budgets below the active family's hardware limit force earlier
// spilling; budgets above it make tapes the family cannot execute, which
// evaluator construction rejects.
func (c Config) WithRegisterLimit(n uint8) Config {
	c.regLimit = n
	return c
}

func (c Config) registerLimit() uint8 {
	if c.regLimit != 0 {
		return c.regLimit
	}
	return familyRegisterLimit(c)
}

package vm

import "math"

// MaxCodeSizeForFork returns the maximum deployed contract code size for the
// given fork rules. EIP-170 (Spurious Dragon) introduced the 24576-byte cap;
// before that there was no limit other than the block gas limit.
func MaxCodeSizeForFork(rules ForkRules) int {
	if rules.IsEIP158 {
		return MaxCodeSize
	}
	return math.MaxInt32
}

// MaxInitCodeSizeForFork returns the maximum init code size for the given
// fork rules. EIP-3860 (Shanghai) introduced the 49152-byte cap (twice
// MaxCodeSize); before that init code was bounded only by the gas limit.
func MaxInitCodeSizeForFork(rules ForkRules) int {
	if rules.IsShanghai {
		return MaxInitCodeSize
	}
	return math.MaxInt32
}

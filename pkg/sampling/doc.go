// ABOUTME: Discrete sample generation package
// ABOUTME: Produces ideal sampled sine sequences for visualization
// Package sampling generates the ideal discrete-time sine sequence
// s[n] = sin(2π·f·n/fs) that the lab plots and serves to remote viewers.
//
// The generator is pure: the same inputs always give the same sequence.
//
// Example:
//
//	samples, err := sampling.Generate(8000, 440, 100)
//	if err != nil {
//	    return err
//	}
//	alias := sampling.Alias(8000, 7000) // 1000 Hz
package sampling

// Package warmup pre-populates the connection and composite pools at boot.
package warmup

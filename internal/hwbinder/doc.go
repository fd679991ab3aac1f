// Package hwbinder is a minimal client for the Linux binder driver as used
// by HIDL services on /dev/hwbinder.
//
// It implements the subset a HAL client needs: the protocol version check,
// the receive mapping, synchronous transactions with reply handling, the
// HIDL service manager lookup and strong reference bookkeeping for the
// handle it returns. It never hosts binder objects of its own, so incoming
// transactions and reference requests are drained and ignored.
//
// The kernel routes a reply to the thread that sent the transaction; every
// transaction therefore runs with its goroutine locked to one OS thread.
package hwbinder

// Package sim provides the paging core of the KV cache simulator.
//
// # Reading Guide
//
// Start with these files to understand the core:
//   - page.go: fixed-capacity K/V storage for a run of token slots
//   - page_pool.go: the fixed universe of pages, free/in-use partition
//   - orchestrator.go: request lifecycle, prefix reuse and copy-on-write
//
// # Architecture
//
// The sim package owns the paging data structures and the request state
// machine. Collaborators live elsewhere:
//   - sim/model/: deterministic tokenizer, K/V generator and token sampler
//   - sim/attention/: scaled dot-product scoring over gathered K/V
//   - sim/trace/: event recording, summaries and JSONL export
//
// # Key Interfaces
//   - KVComputer: produces K/V vectors for a prompt or a decoded token
//   - Tokenizer: text to ordered token ids
//   - TokenSampler: picks the next token during decode
//   - EventSink: receives typed paging events (informational only)
//
// # Concurrency
//
// Every page guards its counters and storage with its own mutex, the pool
// guards its free/in-use partition, and the prefix cache is read/write
// locked. Locks are taken pool before page. Copy-on-write holds the shared
// page's lock while filling the fresh copy, which nobody else can reach yet.
package sim

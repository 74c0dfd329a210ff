/*
Package client is the Go SDK for the burrow HTTP API.

It wraps the daemon's endpoints with typed methods so callers never
touch request shapes or status codes: queries return the records
envelope, publishes return results or job handles, and error replies
come back as the shared error kinds from pkg/types (ErrValidation,
ErrNotFound, ErrConflict, ...) ready for errors.Is. The burrow CLI is
built entirely on this package.

# Architecture

	┌─────────────── APPLICATION CODE ────────────────┐
	│                                                  │
	│  c := client.New("http://localhost:9000")       │
	│  resp, err := c.Query(params)                    │
	│  result, err := c.Publish(req)                   │
	│                                                  │
	└────────────────────┬─────────────────────────────┘
	                     │
	┌────────────────────▼──── pkg/client ─────────────┐
	│  typed methods ──▶ JSON over HTTP                │
	│  status codes  ──▶ pkg/types error kinds         │
	│  bearer token attached per request               │
	└────────────────────┬─────────────────────────────┘
	                     │ HTTP (API_LISTEN_ADDR)
	                     ▼
	              burrow daemon (pkg/api)

# Usage

	c := client.New("http://localhost:9000")

	// Query the index.
	resp, err := c.Query(url.Values{
		"recordType": {"recipe"},
		"search":     {"coq au vin"},
	})

	// Publish synchronously.
	result, err := c.Publish(client.PublishRequest{
		Data:    record.Data,
		Storage: "arweave",
	})

	// Or async, then poll.
	accepted, err := c.PublishAsync(client.PublishRequest{Data: record.Data})
	job, err := c.WaitForJob(ctx, accepted.JobID, time.Second)

	// Against a daemon with auth configured:
	c = client.NewWithToken("https://indexer.example.org", token)

Every call carries a 10 second timeout; the API answers from its local
index, so a slower daemon is a failing one. WaitForJob is the only
method that takes a context, since polling is open-ended.

# Error Handling

Non-2xx replies are translated back into the daemon's error kinds:

	_, err := c.Job("gone")
	if errors.Is(err, types.ErrNotFound) {
		// expired or never existed
	}

401 and 403 both map to ErrOwnershipDenied: either the token is bad or
it belongs to somebody else, and the fix is the same. Health is the one
exception to status mapping: a 503 there is a successfully delivered
"unhealthy" report, not a transport failure.

# Integration Points

  - pkg/api defines the endpoints and wire shapes this SDK speaks.
  - pkg/types supplies the shared vocabulary: RecordData, PublishResult,
    Job, and the error kinds.
  - cmd/burrow builds every command on this client.

# Limitations

  - No retries; the CLI surfaces the first failure. Long-running
    automation should wrap calls in its own backoff.
  - No streaming; job progress is observed by polling.

# See Also

  - pkg/api - The server side of every call
  - cmd/burrow - The CLI built on this SDK
*/
package client

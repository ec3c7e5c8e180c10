// Package openaicompat provides the upstream client for OpenAI-compatible
// chat completion endpoints.
//
// Credentials are not part of the provider: every call receives the
// llm.Credentials resolved for that request, so one Provider serves callers
// with their own endpoint and key as well as the server defaults.
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{Timeout: 60 * time.Second}, logger)
//	ds, err := p.Stream(ctx, creds, msgs)
//	if err != nil {
//	    return err
//	}
//	defer ds.Close()
//	for {
//	    delta, err := ds.Recv()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
package openaicompat

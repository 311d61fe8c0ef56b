// Package acpsdk drives coding agents that speak the Agent Client Protocol
// over a subprocess's stdin and stdout.
//
// A Client owns one agent process and one JSON-RPC connection to it.
// Sessions are conversations within that connection; each Prompt runs one
// turn and streams its updates:
//
//	client := acpsdk.New(
//		acpsdk.WithExecutable("my-agent"),
//		acpsdk.WithCapabilities(acpsdk.ClientCapabilities{
//			Fs: acpsdk.FileSystemCapability{ReadTextFile: true},
//		}),
//	)
//
//	if err := client.Start(ctx); err != nil {
//		return err
//	}
//	defer client.Stop()
//
//	session, err := client.NewSession(ctx, "/path/to/project", nil)
//	if err != nil {
//		return err
//	}
//
//	stream, err := session.Prompt(ctx, "summarize this repository")
//	if err != nil {
//		return err
//	}
//
//	for update := range stream.Updates() {
//		switch u := update.(type) {
//		case *acpsdk.AgentTextUpdate:
//			fmt.Print(u.Text)
//		case *acpsdk.PermissionRequestUpdate:
//			u.Request.Respond(ctx, u.Request.Options[0].OptionID)
//		}
//	}
//
//	fmt.Println(stream.StopReason())
//
// The iterator ends when the turn completes, fails, or is cancelled; check
// stream.Err and stream.StopReason afterwards. For fire-and-collect use,
// Session.PromptAndWait drains the turn and returns the assembled text and
// tool calls.
//
// All errors surfaced by the package wrap sentinels from the closed
// taxonomy (ErrCancelled, ErrSessionNotFound, ...) or are one of the typed
// errors RPCError, TransportError, and ProcessExitError; branch with
// errors.Is and errors.As.
package acpsdk

/*
Package session is the composition root of the host core.

A Session wires the cache store, page fetcher, load controller, web runtime,
message bridge, player manager and connectivity monitor together, and is
the only type a host game talks to:

	s, err := session.New(cfg, session.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		return err
	}
	defer s.Stop()

	detach := s.Attach(surface)
	defer detach()

	s.Show("default")
	s.SubmitEvent(bridge.KindGameplay, []byte(`{"score":10}`))

Attached surfaces form a stack; the most recent one presents the web app and
performs sign-in. Events submitted before the web app has started are kept,
and persisted across restarts when the session stops first.
*/
package session

// Package pvbridge exposes a tree as a table of process variables.
//
// Every variable and command of the tree becomes one PV named by its path with "." replaced by
// ":" and prefixed by a base name. Values flow both ways: tree updates are pushed to a Driver,
// and external writes are queued and applied to the tree by a worker goroutine.
//
//	srv, err := pvbridge.NewServer("lab", root, pvbridge.WithDriver(drv))
//	if err != nil {
//		return err
//	}
//	if err := srv.Start(ctx); err != nil {
//		return err
//	}
//	defer srv.Stop()
//
//	// an external client writes index 2 of an enum PV
//	srv.Write("lab:Top:Dev:Mode", 2)
package pvbridge

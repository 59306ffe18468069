// Package fileio wraps stream file writers and readers as tree devices.
//
// The writer and reader themselves are external; the devices only drive them through the
// StreamWriter and StreamReader interfaces.
//
//	wd, err := fileio.NewWriterDevice("Writer", w)
//	if err != nil {
//		return err
//	}
//	if err := root.Add(wd.Device); err != nil {
//		return err
//	}
package fileio

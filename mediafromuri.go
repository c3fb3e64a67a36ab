package medley

import "context"

// mediaFromURI walks providers advertising CapMediaFromURI in the order the
// registry returns them, asks each whether it claims uri, and hands off to
// the first that does. If none claim it, cb is invoked once with a nil item
// and nil error. Single-callback contract: no streaming.
func (fw *Framework) mediaFromURI(ctx context.Context, uri string, keyset []string, flags Flags, cb Callback) OperationID {
	opID := fw.newOperation()

	for _, p := range fw.registry.SourcesByCapability(CapMediaFromURI, false) {
		prober, ok := p.(URIProber)
		if !ok || !prober.TestMediaFromURI(uri) {
			continue
		}

		req := &MediaFromURIRequest{
			BaseRequest: BaseRequest{
				OperationID: opID,
				Keyset:      keyset,
				Flags:       flags,
				Callback: func(f Frame) {
					f.OperationID = opID
					if f.Item != nil {
						f.Item = stampSource(f.Item, p.ID())
					}
					fw.ops.MarkCompleted(opID)
					cb(f)
					fw.ops.MarkFinished(opID)
				},
			},
			URI: uri,
		}
		prober.MediaFromURI(ctx, req)
		return opID
	}

	fw.ops.MarkCompleted(opID)
	cb(Frame{OperationID: opID, Item: nil, Remaining: 0, Err: nil})
	fw.ops.MarkFinished(opID)
	return opID
}

package buffer

// Page guards bundle the fetch-latch-unpin protocol: ReadPage/WritePage pin
// the frame and take its latch, Drop releases both. The frame's identity is
// stable for the guard's lifetime because the pin blocks eviction.

func (b *BufferpoolManager) ReadPage(pageId int64) (*ReadPageGuard, error) {
	frame, err := b.FetchPage(pageId)
	if err != nil {
		return nil, err
	}

	frame.RLatch()
	return &ReadPageGuard{PageGuard: PageGuard{frame: frame, pageId: pageId, bpm: b}}, nil
}

func (b *BufferpoolManager) WritePage(pageId int64) (*WritePageGuard, error) {
	frame, err := b.FetchPage(pageId)
	if err != nil {
		return nil, err
	}

	frame.WLatch()
	return &WritePageGuard{PageGuard: PageGuard{frame: frame, pageId: pageId, bpm: b}}, nil
}

// NewWriteGuarded allocates a fresh page and returns it write-latched.
func (b *BufferpoolManager) NewWriteGuarded() (*WritePageGuard, int64, error) {
	frame, pageId, err := b.NewPage()
	if err != nil {
		return nil, pageId, err
	}

	frame.WLatch()
	return &WritePageGuard{PageGuard: PageGuard{frame: frame, pageId: pageId, bpm: b}}, pageId, nil
}

func (pg *ReadPageGuard) Drop() {
	if pg == nil || pg.frame == nil {
		return
	}

	pg.frame.RUnlatch()
	pg.bpm.UnpinPage(pg.pageId, false)
	pg.frame = nil
}

func (pg *WritePageGuard) Drop() {
	if pg == nil || pg.frame == nil {
		return
	}

	pg.frame.WUnlatch()
	pg.bpm.UnpinPage(pg.pageId, true)
	pg.frame = nil
}

func (pg *ReadPageGuard) GetData() []byte {
	return pg.frame.data
}

func (pg *WritePageGuard) GetDataMut() []byte {
	return pg.frame.data
}

type PageGuard struct {
	frame  *Frame
	pageId int64
	bpm    *BufferpoolManager
}

type ReadPageGuard struct {
	PageGuard
}

type WritePageGuard struct {
	PageGuard
}

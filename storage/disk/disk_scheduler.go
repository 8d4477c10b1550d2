package disk

import (
	"sync"
)

func NewScheduler(diskManager *diskManager) *DiskScheduler {
	ds := &DiskScheduler{
		reqCh:       make(chan DiskReq, 100),
		pageQueue:   make(map[int64]chan DiskReq),
		diskManager: diskManager,
	}

	go ds.handleDiskReq()
	return ds
}

func NewRequest(pageId int64, data []byte, isWrite bool) DiskReq {
	return DiskReq{
		PageId: pageId,
		Data:   data,
		Write:  isWrite,
		RespCh: make(chan DiskResp),
	}
}

// Schedule enqueues a request and returns the channel its response will
// arrive on. Requests for the same page are served in submission order;
// requests for distinct pages may be served in parallel.
func (ds *DiskScheduler) Schedule(req DiskReq) <-chan DiskResp {
	ds.reqCh <- req
	return req.RespCh
}

// AllocatePage issues a fresh page id from the underlying disk manager.
func (ds *DiskScheduler) AllocatePage() int64 {
	return ds.diskManager.AllocatePage()
}

// DeallocatePage releases a page id for reuse.
func (ds *DiskScheduler) DeallocatePage(pageId int64) {
	ds.diskManager.DeallocatePage(pageId)
}

// Sync flushes completed writes to stable storage.
func (ds *DiskScheduler) Sync() error {
	return ds.diskManager.Sync()
}

func (ds *DiskScheduler) handleDiskReq() {
	for req := range ds.reqCh {
		ds.pageQueueMu.Lock()
		queue, ok := ds.pageQueue[req.PageId]
		if !ok {
			queue = make(chan DiskReq, 10)
			ds.pageQueue[req.PageId] = queue
		}
		// Enqueue while holding the mutex so an exiting worker cannot
		// remove the queue between the lookup and the send.
		queue <- req
		ds.pageQueueMu.Unlock()

		// !ok means we created a new page queue, therefore we should start a
		// new worker to handle the queue's page requests
		if !ok {
			go ds.pageWorker(req.PageId, queue)
		}
	}
}

func (ds *DiskScheduler) pageWorker(pageId int64, reqQueue chan DiskReq) {
	for {
		select {
		case req := <-reqQueue:
			ds.serve(req)

		default:
			// Re-check under the mutex before retiring the queue: a request
			// may have landed after the drain above.
			ds.pageQueueMu.Lock()
			select {
			case req := <-reqQueue:
				ds.pageQueueMu.Unlock()
				ds.serve(req)
			default:
				delete(ds.pageQueue, pageId)
				ds.pageQueueMu.Unlock()
				return
			}
		}
	}
}

func (ds *DiskScheduler) serve(req DiskReq) {
	if req.Write {
		err := ds.diskManager.writePage(req.PageId, req.Data)
		req.RespCh <- DiskResp{Err: err}
		return
	}

	data, err := ds.diskManager.readPage(req.PageId)
	req.RespCh <- DiskResp{Data: data, Err: err}
}

type DiskScheduler struct {
	reqCh       chan DiskReq
	diskManager *diskManager

	pageQueue   map[int64]chan DiskReq
	pageQueueMu sync.Mutex
}

type DiskReq struct {
	PageId int64
	Data   []byte
	Write  bool
	RespCh chan DiskResp
}

type DiskResp struct {
	Data []byte
	Err  error
}

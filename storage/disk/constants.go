package disk

const (
	// PAGE_SIZE is the size of the logical page payload. The on-disk slot for
	// a page is larger when compression is enabled, see slotSize.
	PAGE_SIZE = 4096

	// DEFAULT_PAGE_CAPACITY is the number of page slots a fresh db file can
	// hold before it is grown.
	DEFAULT_PAGE_CAPACITY = 16

	// INVALID_PAGE_ID marks a frame that holds no resident page.
	INVALID_PAGE_ID int64 = -1
)

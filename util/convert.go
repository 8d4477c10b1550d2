package util

import (
	"github.com/mwangi/stratum/storage/disk"
	"github.com/vmihailenco/msgpack"
)

// ToByteSlice encodes obj with msgpack and pads the result to a full page.
func ToByteSlice[T any](obj T) ([]byte, error) {
	res := make([]byte, disk.PAGE_SIZE)

	data, err := msgpack.Marshal(obj)
	if err != nil {
		return nil, err
	}
	if len(data) > disk.PAGE_SIZE {
		return nil, &StratumError{Message: "encoded object larger than a page"}
	}
	copy(res, data)

	return res, nil
}

func ToStruct[T any](data []byte) (T, error) {
	var res T

	if err := msgpack.Unmarshal(data, &res); err != nil {
		return res, err
	}

	return res, nil
}

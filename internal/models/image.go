package models

import "time"

// ImageInfo describes a stored base image.
type ImageInfo struct {
	ID         string    `json:"id" msgpack:"id"`
	Name       string    `json:"name" msgpack:"name"`
	Size       int64     `json:"size" msgpack:"size"`
	Format     string    `json:"format" msgpack:"format"`
	Width      int       `json:"width" msgpack:"width"`
	Height     int       `json:"height" msgpack:"height"`
	UploadedAt time.Time `json:"uploadedAt" msgpack:"uploadedAt"`
}

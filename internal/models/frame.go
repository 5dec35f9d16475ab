package models

import "image"

// Frame 单帧摄像头画面（已解码的像素数据）
// Image 由采集端解码后传入，发送到远程测量服务前再统一压缩为 JPEG
type Frame struct {
	Image       image.Image
	TimestampMS int64 // 采集时间（Unix 毫秒）
}

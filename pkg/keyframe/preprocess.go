package keyframe

import (
	"errors"
	"image"

	"gocv.io/x/gocv"
)

// Preprocess downscales a raw BGR frame, keeps the luminance channel and
// blurs it to suppress minor variation such as cursor movement. Similarity is
// always computed on the returned plane, never on the raw frame.
func Preprocess(frame gocv.Mat, p Params) (*Gray, error) {
	if frame.Empty() {
		return nil, errors.New("empty frame")
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(frame, &resized, image.Pt(p.DownscaleWidth, p.DownscaleHeight), 0, 0, gocv.InterpolationLinear)

	ycrcb := gocv.NewMat()
	defer ycrcb.Close()
	gocv.CvtColor(resized, &ycrcb, gocv.ColorBGRToYCrCb)

	channels := gocv.Split(ycrcb)
	luminance := channels[0]
	for _, ch := range channels[1:] {
		ch.Close()
	}
	defer luminance.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(luminance, &blurred, image.Pt(5, 5), 1.0, 1.0, gocv.BorderDefault)

	f32 := gocv.NewMat()
	defer f32.Close()
	blurred.ConvertTo(&f32, gocv.MatTypeCV32F)

	data, err := f32.DataPtrFloat32()
	if err != nil {
		return nil, err
	}

	g := NewGray(p.DownscaleWidth, p.DownscaleHeight)
	copy(g.Pix, data)
	return g, nil
}

// EncodeJPEG encodes a raw frame as JPEG bytes for the captured slide image.
func EncodeJPEG(frame gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(".jpg", frame)
	if err != nil {
		return nil, err
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}

// Package tensor provides the core tensor types and operations for the ResNet engine.
package tensor

import (
	"math"

	"github.com/gomlx/exceptions"
)

// Verify that MockBackend implements Backend.
var _ Backend = (*MockBackend)(nil)

// MockBackend is a simple backend for testing.
// It implements all operations with direct nested loops so optimized
// backends can be checked against it.
type MockBackend struct{}

// NewMockBackend creates a new MockBackend.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

// Name returns the backend name.
func (m *MockBackend) Name() string {
	return "mock"
}

// Device returns the device type.
func (m *MockBackend) Device() Device {
	return CPU
}

func (m *MockBackend) alloc(shape Shape) *RawTensor {
	out, err := NewRaw(shape, CPU)
	if err != nil {
		panic(err)
	}
	return out
}

// Add performs strict element-wise addition.
func (m *MockBackend) Add(a, b *RawTensor) *RawTensor {
	CheckSameShape("add", a.Shape(), b.Shape())
	out := m.alloc(a.Shape())
	od, ad, bd := out.Float32(), a.Float32(), b.Float32()
	for i := range od {
		od[i] = ad[i] + bd[i]
	}
	return out
}

// ReLU computes max(x, 0).
func (m *MockBackend) ReLU(x *RawTensor) *RawTensor {
	out := m.alloc(x.Shape())
	od := out.Float32()
	for i, v := range x.Float32() {
		if v > 0 {
			od[i] = v
		}
	}
	return out
}

// Conv2D is a direct seven-loop convolution.
func (m *MockBackend) Conv2D(input, kernel *RawTensor, stride, padding int) *RawTensor {
	is, ks := input.Shape(), kernel.Shape()
	if len(is) != 4 || len(ks) != 4 || is[1] != ks[1] {
		exceptions.Panicf("mock conv2d: incompatible input %v and kernel %v", is, ks)
	}
	n, cin, h, w := is[0], is[1], is[2], is[3]
	cout, kh, kw := ks[0], ks[2], ks[3]
	oh := ConvOutputSize(h, kh, stride, padding)
	ow := ConvOutputSize(w, kw, stride, padding)

	out := m.alloc(Shape{n, cout, oh, ow})
	x, k, o := input.Float32(), kernel.Float32(), out.Float32()
	for b := 0; b < n; b++ {
		for co := 0; co < cout; co++ {
			for y := 0; y < oh; y++ {
				for xx := 0; xx < ow; xx++ {
					var sum float32
					for ci := 0; ci < cin; ci++ {
						for i := 0; i < kh; i++ {
							for j := 0; j < kw; j++ {
								iy := y*stride + i - padding
								ix := xx*stride + j - padding
								if iy < 0 || iy >= h || ix < 0 || ix >= w {
									continue
								}
								sum += x[((b*cin+ci)*h+iy)*w+ix] * k[((co*cin+ci)*kh+i)*kw+j]
							}
						}
					}
					o[((b*cout+co)*oh+y)*ow+xx] = sum
				}
			}
		}
	}
	return out
}

// MaxPool2D takes window maxima, skipping padded cells.
func (m *MockBackend) MaxPool2D(input *RawTensor, kernelSize, stride, padding int) *RawTensor {
	is := input.Shape()
	n, c, h, w := is[0], is[1], is[2], is[3]
	oh := ConvOutputSize(h, kernelSize, stride, padding)
	ow := ConvOutputSize(w, kernelSize, stride, padding)
	out := m.alloc(Shape{n, c, oh, ow})
	x, o := input.Float32(), out.Float32()
	for p := 0; p < n*c; p++ {
		for y := 0; y < oh; y++ {
			for xx := 0; xx < ow; xx++ {
				best := float32(math.Inf(-1))
				for i := 0; i < kernelSize; i++ {
					for j := 0; j < kernelSize; j++ {
						iy, ix := y*stride+i-padding, xx*stride+j-padding
						if iy < 0 || iy >= h || ix < 0 || ix >= w {
							continue
						}
						if v := x[(p*h+iy)*w+ix]; v > best {
							best = v
						}
					}
				}
				o[(p*oh+y)*ow+xx] = best
			}
		}
	}
	return out
}

// GlobalAvgPool2D averages each channel plane.
func (m *MockBackend) GlobalAvgPool2D(input *RawTensor) *RawTensor {
	is := input.Shape()
	n, c, hw := is[0], is[1], is[2]*is[3]
	out := m.alloc(Shape{n, c})
	x, o := input.Float32(), out.Float32()
	for p := 0; p < n*c; p++ {
		var sum float64
		for _, v := range x[p*hw : (p+1)*hw] {
			sum += float64(v)
		}
		o[p] = float32(sum / float64(hw))
	}
	return out
}

// ChannelMoments computes per-channel mean and biased variance.
func (m *MockBackend) ChannelMoments(x *RawTensor) (mean, variance *RawTensor) {
	s := x.Shape()
	n, c := s[0], s[1]
	hw := x.NumElements() / (n * c)
	mean, variance = m.alloc(Shape{c}), m.alloc(Shape{c})
	data := x.Float32()
	count := float64(n * hw)
	for ch := 0; ch < c; ch++ {
		var sum, sq float64
		for b := 0; b < n; b++ {
			for _, v := range data[(b*c+ch)*hw : (b*c+ch+1)*hw] {
				sum += float64(v)
				sq += float64(v) * float64(v)
			}
		}
		mu := sum / count
		mean.Float32()[ch] = float32(mu)
		variance.Float32()[ch] = float32(sq/count - mu*mu)
	}
	return mean, variance
}

// ChannelAffine computes x*scale[c] + shift[c].
func (m *MockBackend) ChannelAffine(x, scale, shift *RawTensor) *RawTensor {
	s := x.Shape()
	n, c := s[0], s[1]
	hw := x.NumElements() / (n * c)
	out := m.alloc(s)
	xd, od := x.Float32(), out.Float32()
	for b := 0; b < n; b++ {
		for ch := 0; ch < c; ch++ {
			a, sh := float32(1), float32(0)
			if scale != nil {
				a = scale.Float32()[ch]
			}
			if shift != nil {
				sh = shift.Float32()[ch]
			}
			base := (b*c + ch) * hw
			for i := 0; i < hw; i++ {
				od[base+i] = xd[base+i]*a + sh
			}
		}
	}
	return out
}

// Linear computes x @ weight^T + bias.
func (m *MockBackend) Linear(x, weight, bias *RawTensor) *RawTensor {
	n, in := x.Shape()[0], x.Shape()[1]
	outF := weight.Shape()[0]
	if weight.Shape()[1] != in {
		panic(&ShapeMismatchError{Op: "linear", Expected: Shape{outF, in}, Actual: weight.Shape()})
	}
	out := m.alloc(Shape{n, outF})
	xd, wd, od := x.Float32(), weight.Float32(), out.Float32()
	for i := 0; i < n; i++ {
		for j := 0; j < outF; j++ {
			var sum float32
			for k := 0; k < in; k++ {
				sum += xd[i*in+k] * wd[j*in+k]
			}
			if bias != nil {
				sum += bias.Float32()[j]
			}
			od[i*outF+j] = sum
		}
	}
	return out
}

// Reshape returns a view with a new shape.
func (m *MockBackend) Reshape(t *RawTensor, newShape Shape) *RawTensor {
	out, err := t.View(newShape)
	if err != nil {
		exceptions.Panicf("reshape: %v", err)
	}
	return out
}

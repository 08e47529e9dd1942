// Package shapes is loaded by the introspect tests.
package shapes

import "math"

type Rect struct {
	W, H  float64
	Label string
	note  string
}

func NewRect(w, h float64) *Rect { return &Rect{W: w, H: h} }

func (r *Rect) Area() float64        { return r.W * r.H }
func (r *Rect) GetDiagonal() float64 { return math.Hypot(r.W, r.H) }
func (r *Rect) IsSquare() bool       { return r.W == r.H }
func (r *Rect) SetLabel(s string)    { r.Label = s }
func (r Rect) String() string        { return r.Label }

func (r *Rect) Scale(f float64) error {
	r.W *= f
	r.H *= f
	return nil
}

func (r *Rect) Sum(xs ...float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s
}

type Labeled struct {
	Rect
	Extra int
}

type Ghost struct{}

func (Ghost) MethodMissing(name string, args []any) (any, error) { return name, nil }
func (Ghost) Hello() string                                      { return "hello" }

type Celsius float64

func (c Celsius) Fahrenheit() float64 { return float64(c)*9/5 + 32 }

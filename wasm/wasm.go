//go:build js && wasm

package main

import (
	"bytes"
	"math/rand"
	"strconv"
	"time"

	"github.com/esimov/pixel-particles/imageio"
	field "github.com/esimov/pixel-particles/particle-field"
	"github.com/esimov/pixel-particles/wasm/canvas"
)

func main() {
	c, err := canvas.NewCanvas("particles")
	if err != nil {
		println(err.Error())
		return
	}
	width, height := intAttr(c, "width", 200), intAttr(c, "height", 200)
	c.Resize(width, height)

	data, err := c.Fetch(c.Attribute("src"))
	if err != nil {
		c.Alert("Image could not be loaded!")
		return
	}
	img, _, err := imageio.Decode(bytes.NewReader(data))
	if err != nil {
		c.Alert("Image could not be decoded!")
		return
	}

	f := field.New(img, field.Options{
		Width:       float64(width),
		Height:      float64(height),
		Radius:      floatAttr(c, "particle-size", field.DefaultParticleRadius),
		TargetCount: intAttr(c, "particles", 0),
	}, rand.New(rand.NewSource(time.Now().UnixNano())))
	c.Log("particles", f.Len())

	c.Start(field.NewLoop(f))
	select {}
}

func intAttr(c *canvas.Canvas, name string, def int) int {
	if v, err := strconv.Atoi(c.Attribute(name)); err == nil && v > 0 {
		return v
	}
	return def
}

func floatAttr(c *canvas.Canvas, name string, def float64) float64 {
	if v, err := strconv.ParseFloat(c.Attribute(name), 64); err == nil && v > 0 {
		return v
	}
	return def
}

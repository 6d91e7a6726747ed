//go:build js && wasm

package main

import (
	"syscall/js"

	"github.com/sticky3d/glbrescale/api"
)

func bytesFromJS(v js.Value) []byte {
	buf := make([]byte, v.Get("length").Int())
	js.CopyBytesToGo(buf, v)
	return buf
}

func bytesToJS(b []byte) js.Value {
	arr := js.Global().Get("Uint8Array").New(len(b))
	js.CopyBytesToJS(arr, b)
	return arr
}

func dimsToJS(d [3]float64) js.Value {
	return js.ValueOf([]any{d[0], d[1], d[2]})
}

// rescaleGlb(bytes, factor) -> {glb: Uint8Array, dimensions: [x, y, z]} or an error string
func rescaleGlb(this js.Value, args []js.Value) any {
	if len(args) < 2 {
		return js.ValueOf("missing glb bytes or scale factor")
	}
	out, dims, err := api.RescaleGLBBytes(bytesFromJS(args[0]), args[1].Float())
	if err != nil {
		return js.ValueOf(err.Error())
	}
	result := js.Global().Get("Object").New()
	result.Set("glb", bytesToJS(out))
	result.Set("dimensions", dimsToJS(dims))
	return result
}

func measureGlb(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return js.ValueOf("missing glb bytes")
	}
	scene, first, err := api.MeasureGLBBytes(bytesFromJS(args[0]))
	if err != nil {
		return js.ValueOf(err.Error())
	}
	result := js.Global().Get("Object").New()
	result.Set("scene", dimsToJS(scene))
	result.Set("first", dimsToJS(first))
	return result
}

func packGlbs(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return js.ValueOf("missing files object")
	}
	filesObj := args[0]
	files := map[string][]byte{}
	keys := js.Global().Get("Object").Call("keys", filesObj)
	for i := 0; i < keys.Length(); i++ {
		k := keys.Index(i).String()
		files[k] = bytesFromJS(filesObj.Get(k))
	}
	out, err := api.PackGLBs(files)
	if err != nil {
		return js.ValueOf(err.Error())
	}
	return bytesToJS(out)
}

func unpackGlbpack(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return js.ValueOf("missing pack bytes")
	}
	files, err := api.UnpackGLBPackToMemory(bytesFromJS(args[0]))
	if err != nil {
		return js.ValueOf(err.Error())
	}
	result := js.Global().Get("Object").New()
	for name, b := range files {
		result.Set(name, bytesToJS(b))
	}
	return result
}

func main() {
	js.Global().Set("rescaleGlb", js.FuncOf(rescaleGlb))
	js.Global().Set("measureGlb", js.FuncOf(measureGlb))
	js.Global().Set("packGlbs", js.FuncOf(packGlbs))
	js.Global().Set("unpackGlbpack", js.FuncOf(unpackGlbpack))
	select {}
}

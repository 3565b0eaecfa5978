package websocket

import (
	"reflect"

	socketio "github.com/zishang520/socket.io/v2/socket"
)

// ackFunc answers a client acknowledgement.
type ackFunc func(payload map[string]any, err error)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// splitAck separates a trailing acknowledgement callback from the event
// arguments. Clients send callbacks of differing signatures, so the callback
// is invoked by reflection: error parameters get err, slices get the payload
// wrapped as one argument, anything else gets the payload itself.
func splitAck(datas []any) ([]any, ackFunc) {
	if len(datas) == 0 {
		return datas, nil
	}
	last := datas[len(datas)-1]
	if last == nil {
		return datas, nil
	}
	fn := reflect.ValueOf(last)
	if fn.Kind() != reflect.Func {
		return datas, nil
	}

	ack := func(payload map[string]any, err error) {
		typ := fn.Type()
		in := make([]reflect.Value, typ.NumIn())
		for i := range in {
			param := typ.In(i)
			var arg any
			switch {
			case param == errorType:
				if err != nil {
					arg = err
				}
			case param.Kind() == reflect.Slice:
				arg = []any{payload}
			default:
				arg = payload
			}
			in[i] = coerce(arg, param)
		}
		if typ.IsVariadic() {
			fn.CallSlice(in)
			return
		}
		fn.Call(in)
	}
	return datas[:len(datas)-1], ack
}

func coerce(value any, target reflect.Type) reflect.Value {
	if value == nil {
		return reflect.Zero(target)
	}
	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(target) {
		return rv
	}
	if rv.Type().ConvertibleTo(target) {
		return rv.Convert(target)
	}
	return reflect.Zero(target)
}

// reply acknowledges the request and mirrors the payload as an event for
// clients that did not pass a callback.
func reply(socket *socketio.Socket, ack ackFunc, event string, payload map[string]any, err error) {
	if ack != nil {
		ack(payload, err)
		return
	}
	_ = socket.Emit(event, payload)
}

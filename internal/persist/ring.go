package persist

// Ring динамически растущий кольцевой буфер команд в строгом FIFO порядке.
//
// Буфер сам не синхронизируется: каждая операция (включая Size/Empty/Full)
// должна выполняться под одним внешним мьютексом, потому что start и length
// меняются неатомарно. Push никогда не блокирует — при заполнении буфер
// удваивается, сохраняя порядок элементов. Буфер не сжимается до конца
// жизни worker-а.
type Ring struct {
	data   []Command
	start  int // индекс логически первого элемента
	length int // количество положенных, но не извлеченных элементов
}

// NewRing создает пустой буфер с указанной начальной ёмкостью (минимум 1).
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{data: make([]Command, capacity)}
}

// Empty проверяет, пуст ли буфер
func (r *Ring) Empty() bool {
	return r.length == 0
}

// Full проверяет, заполнен ли буфер до текущей ёмкости
func (r *Ring) Full() bool {
	return r.length == len(r.data)
}

// Size возвращает количество элементов в буфере
func (r *Ring) Size() int {
	return r.length
}

// Capacity возвращает текущую ёмкость буфера
func (r *Ring) Capacity() int {
	return len(r.data)
}

// Push кладет команду в логический конец буфера.
// При заполнении сначала удваивает ёмкость, перенося существующие элементы
// в исходном порядке на позиции [0, length).
func (r *Ring) Push(cmd Command) {
	if r.Full() {
		r.grow()
	}
	r.data[(r.start+r.length)%len(r.data)] = cmd
	r.length++
}

// Pop извлекает команду из логического начала буфера.
// Возвращает (nil, false), если буфер пуст.
func (r *Ring) Pop() (Command, bool) {
	if r.length == 0 {
		return nil, false
	}
	cmd := r.data[r.start]
	r.data[r.start] = nil
	r.start = (r.start + 1) % len(r.data)
	r.length--
	return cmd, true
}

// grow удваивает ёмкость, сохраняя порядок элементов
func (r *Ring) grow() {
	newData := make([]Command, len(r.data)*2)
	for i := 0; i < r.length; i++ {
		newData[i] = r.data[(r.start+i)%len(r.data)]
	}
	r.data = newData
	r.start = 0
}

// Free освобождает буфер. Вызывать только после остановки worker-а,
// когда конкурентный доступ исключен.
func (r *Ring) Free() {
	r.data = nil
	r.start = 0
	r.length = 0
}
